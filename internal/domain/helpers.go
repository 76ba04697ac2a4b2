package domain

import "strings"

func DefaultTriplet(goos, goarch string) string {
	arch := "x64"
	if goarch == "arm64" {
		arch = "arm64"
	}

	switch goos {
	case "windows":
		return arch + "-windows-static"
	case "darwin":
		return arch + "-osx"
	default:
		return arch + "-linux"
	}
}

func executableName(goos string) string {
	if goos == "windows" {
		return "vcpkg.exe"
	}
	return "vcpkg"
}

func bootstrapScriptName(goos string) string {
	if goos == "windows" {
		return "bootstrap-vcpkg.bat"
	}
	return "bootstrap-vcpkg.sh"
}

func formatSpec(name string, features []string, triplet string) string {
	var b strings.Builder
	b.WriteString(name)
	if len(features) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(features, ","))
		b.WriteString("]")
	}
	if triplet != "" {
		b.WriteString(":")
		b.WriteString(triplet)
	}
	return b.String()
}
