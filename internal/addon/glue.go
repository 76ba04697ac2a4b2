package addon

import (
	"fmt"
	"strings"
)

const (
	// ExportName is the JS-visible name of the entry point.
	ExportName = "run"
	// RunFunction is the C entry point that replaces main().
	RunFunction = "ffmpeg_run"
)

const napiInclude = "#include <node_api.h>"

const runSignature = "napi_value " + RunFunction

// runFunctionC converts a JS array of strings into argv and drives the same
// sequence main() did, returning the exit code as a number.
const runFunctionC = `

/**
 * Run ffmpeg with an array of command line arguments.
 * Called from JavaScript as run(["-i", "in.mp4", "out.webm"]).
 */
napi_value ffmpeg_run(napi_env env, napi_callback_info info)
{
    napi_status status;
    size_t argc = 1;
    napi_value args[1];
    napi_value result;
    Scheduler *sch = NULL;
    BenchmarkTimeStamps ti;
    bool is_array = false;
    uint32_t n = 0;
    char **argv = NULL;
    int total = 0;
    int ret;

    status = napi_get_cb_info(env, info, &argc, args, NULL, NULL);
    if (status != napi_ok) {
        napi_throw_error(env, NULL, "Failed to get callback info");
        return NULL;
    }

    if (argc < 1 || napi_is_array(env, args[0], &is_array) != napi_ok || !is_array) {
        napi_throw_type_error(env, NULL, "Expected an array of arguments");
        return NULL;
    }

    if (napi_get_array_length(env, args[0], &n) != napi_ok) {
        napi_throw_error(env, NULL, "Failed to get array length");
        return NULL;
    }

    total = (int)n + 1;
    argv = av_calloc(total + 1, sizeof(*argv));
    if (!argv) {
        napi_throw_error(env, NULL, "Failed to allocate memory");
        return NULL;
    }
    argv[0] = av_strdup("ffmpeg");

    for (uint32_t i = 0; i < n; i++) {
        napi_value element;
        size_t len = 0;

        if (napi_get_element(env, args[0], i, &element) != napi_ok ||
            napi_get_value_string_utf8(env, element, NULL, 0, &len) != napi_ok) {
            free_argv(argv, total);
            napi_throw_type_error(env, NULL, "Array element must be a string");
            return NULL;
        }

        argv[i + 1] = av_mallocz(len + 1);
        if (!argv[i + 1] ||
            napi_get_value_string_utf8(env, element, argv[i + 1], len + 1, &len) != napi_ok) {
            free_argv(argv, total);
            napi_throw_error(env, NULL, "Failed to copy argument");
            return NULL;
        }
    }

    init_dynload();

    setvbuf(stderr, NULL, _IONBF, 0);

    av_log_set_flags(AV_LOG_SKIP_REPEATED);
    parse_loglevel(total, argv, options);

#if CONFIG_AVDEVICE
    avdevice_register_all();
#endif
    avformat_network_init();

    sch = sch_alloc();
    if (!sch) {
        ret = AVERROR(ENOMEM);
        goto finish;
    }

    ret = ffmpeg_parse_options(total, argv, sch);
    if (ret < 0)
        goto finish;

    if (nb_output_files <= 0 && nb_input_files == 0) {
        av_log(NULL, AV_LOG_WARNING, "No input or output files specified\n");
        ret = 1;
        goto finish;
    }

    if (nb_output_files <= 0) {
        av_log(NULL, AV_LOG_FATAL, "At least one output file must be specified\n");
        ret = 1;
        goto finish;
    }

    current_time = ti = get_benchmark_time_stamps();
    ret = transcode(sch);
    if (ret >= 0 && do_benchmark) {
        int64_t utime, stime, rtime;
        current_time = get_benchmark_time_stamps();
        utime = current_time.user_usec - ti.user_usec;
        stime = current_time.sys_usec  - ti.sys_usec;
        rtime = current_time.real_usec - ti.real_usec;
        av_log(NULL, AV_LOG_INFO,
               "bench: utime=%0.3fs stime=%0.3fs rtime=%0.3fs\n",
               utime / 1000000.0, stime / 1000000.0, rtime / 1000000.0);
    }

    ret = received_nb_signals                 ? 255 :
          (ret == FFMPEG_ERROR_RATE_EXCEEDED) ?  69 : ret;

finish:
    if (ret == AVERROR_EXIT)
        ret = 0;

    ffmpeg_cleanup(ret);
    sch_free(&sch);
    free_argv(argv, total);

    if (napi_create_int32(env, ret, &result) != napi_ok)
        return NULL;

    return result;
}
`

// freeArgvC is placed ahead of ffmpeg_run so the helper is declared before
// use.
const freeArgvC = `

static void free_argv(char **argv, int n)
{
    if (!argv)
        return;
    for (int i = 0; i < n; i++)
        av_freep(&argv[i]);
    av_free(argv);
}`

const freeArgvSignature = "static void free_argv(char **argv, int n)"

// bindingTemplate registers the module. The cleanup hook releases network
// state when the Node.js environment that loaded the addon shuts down.
const bindingTemplate = `#include <node_api.h>
#include "libavformat/avformat.h"

extern napi_value %[2]s(napi_env env, napi_callback_info info);

static void ffmpeg_addon_cleanup(void *arg)
{
    (void)arg;
    avformat_network_deinit();
}

static napi_value ffmpeg_addon_init(napi_env env, napi_value exports)
{
    napi_status status;
    napi_value fn;

    status = napi_create_function(env, "%[1]s", NAPI_AUTO_LENGTH, %[2]s, NULL, &fn);
    if (status != napi_ok)
        return NULL;

    status = napi_set_named_property(env, exports, "%[1]s", fn);
    if (status != napi_ok)
        return NULL;

    status = napi_add_env_cleanup_hook(env, ffmpeg_addon_cleanup, NULL);
    if (status != napi_ok)
        return NULL;

    return exports;
}

NAPI_MODULE(NODE_GYP_MODULE_NAME, ffmpeg_addon_init)
`

var bindingC = fmt.Sprintf(bindingTemplate, ExportName, RunFunction)

type define struct {
	name  string
	value string
}

// Platform holds what config.h needs to know about the build target.
type Platform struct {
	Windows bool
	Arch    string
	Year    int
}

// PlatformFor derives the platform from a vcpkg triplet such as
// x64-windows-static or arm64-osx.
func PlatformFor(triplet string, year int) Platform {
	arch, _, _ := strings.Cut(triplet, "-")
	return Platform{
		Windows: strings.Contains(triplet, "windows") || strings.Contains(triplet, "mingw"),
		Arch:    arch,
		Year:    year,
	}
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

func (p Platform) defines() [][]define {
	w := p.Windows

	system := []define{
		{"HAVE_IO_H", flag(w)},
		{"HAVE_UNISTD_H", flag(!w)},
		{"HAVE_SYS_RESOURCE_H", flag(!w)},
		{"HAVE_GETPROCESSTIMES", flag(w)},
		{"HAVE_GETPROCESSMEMORYINFO", flag(w)},
		{"HAVE_SETCONSOLECTRLHANDLER", flag(w)},
		{"HAVE_SYS_SELECT_H", flag(!w)},
		{"HAVE_TERMIOS_H", flag(!w)},
		{"HAVE_KBHIT", flag(w)},
		{"HAVE_PEEKNAMEDPIPE", flag(w)},
		{"HAVE_GETSTDHANDLE", flag(w)},
		{"HAVE_GETRUSAGE", flag(!w)},
	}

	components := []define{
		{"CONFIG_AVUTIL", "1"},
		{"CONFIG_AVCODEC", "1"},
		{"CONFIG_AVFORMAT", "1"},
		{"CONFIG_AVDEVICE", "1"},
		{"CONFIG_AVFILTER", "1"},
		{"CONFIG_SWSCALE", "1"},
		{"CONFIG_SWRESAMPLE", "1"},
		{"CONFIG_POSTPROC", "0"},
	}

	arch := []define{
		{"ARCH_X86_32", flag(p.Arch == "x86")},
		{"ARCH_X86_64", flag(p.Arch == "x64")},
		{"ARCH_AARCH64", flag(p.Arch == "arm64")},
		{"ARCH_ARM", flag(p.Arch == "arm")},
	}

	threads := []define{
		{"HAVE_PTHREADS", flag(!w)},
		{"HAVE_W32THREADS", flag(w)},
	}

	misc := []define{
		{"HAVE_BIGENDIAN", "0"},
		{"HAVE_LRINT", "1"},
		{"HAVE_LRINTF", "1"},
	}

	return [][]define{system, components, arch, threads, misc}
}

// ConfigHeader renders the config.h used when the tree was never run
// through FFmpeg's configure script.
func ConfigHeader(p Platform) string {
	target := "POSIX"
	cc := "cc"
	if p.Windows {
		target = "Windows"
		cc = "MSVC"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "/* config.h - generated for %s %s build */\n", target, p.Arch)
	b.WriteString("#ifndef CONFIG_H\n#define CONFIG_H\n")

	for _, group := range p.defines() {
		b.WriteString("\n")
		for _, d := range group {
			fmt.Fprintf(&b, "#define %s %s\n", d.name, d.value)
		}
	}

	b.WriteString("\n")
	b.WriteString("#define FFMPEG_DATADIR \"\"\n")
	b.WriteString("#define AVCONV_DATADIR \"\"\n")
	fmt.Fprintf(&b, "#define CONFIG_THIS_YEAR %d\n", p.Year)
	fmt.Fprintf(&b, "#define FFMPEG_CONFIGURATION \"%s build for Node.js addon\"\n", target)
	fmt.Fprintf(&b, "#define CC_IDENT \"%s\"\n", cc)
	b.WriteString("#define FFMPEG_VERSION \"N/A\"\n")
	b.WriteString("\n#endif /* CONFIG_H */\n")

	return b.String()
}
