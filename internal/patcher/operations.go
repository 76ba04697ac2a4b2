package patcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teamcutter/addonforge/internal/scanner"
)

var (
	ErrAnchorNotFound = errors.New("anchor not found")
	ErrMarkerNotFound = errors.New("marker not found")
	ErrUnbalanced     = errors.New("unbalanced structure")
)

type Outcome int

const (
	Applied Outcome = iota
	AlreadyApplied
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyApplied:
		return "already applied"
	case NotFound:
		return "not found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Operation is a named edit against a file's text. Applying an operation to
// its own output must be a no-op.
type Operation interface {
	Name() string
	Apply(content string) (string, Outcome, error)
}

// Replace swaps every occurrence of an exact substring. A missing Old is
// tolerated and reported as NotFound.
type Replace struct {
	Label string
	Old   string
	New   string
}

func (r Replace) Name() string { return r.Label }

func (r Replace) Apply(content string) (string, Outcome, error) {
	if r.Old == "" {
		return content, NotFound, nil
	}

	wraps := strings.Contains(r.New, r.Old)
	if wraps && strings.Contains(content, r.New) {
		return content, AlreadyApplied, nil
	}

	if !strings.Contains(content, r.Old) {
		if r.New != "" && strings.Contains(content, r.New) {
			return content, AlreadyApplied, nil
		}
		return content, NotFound, nil
	}

	return strings.ReplaceAll(content, r.Old, r.New), Applied, nil
}

// Unqualify drops a storage qualifier from an exact function signature,
// e.g. "static int f(void)" becomes "int f(void)".
func Unqualify(signature, qualifier string) Replace {
	return Replace{
		Label: "unqualify " + signature,
		Old:   signature,
		New:   strings.TrimSpace(strings.TrimPrefix(signature, qualifier)),
	}
}

// Guard wraps an exact line in a preprocessor conditional.
func Guard(line, condition string) Replace {
	return Replace{
		Label: "guard " + strings.TrimSpace(line) + " with " + condition,
		Old:   line,
		New:   "#if " + condition + "\n" + line + "\n#endif",
	}
}

// RemoveFunction deletes a whole function definition, located by its
// signature, and leaves a marker comment naming the replacement entry point.
type RemoveFunction struct {
	Function    string
	Signature   string
	Replacement string
}

func (r RemoveFunction) Name() string { return "remove " + r.Function + "()" }

func (r RemoveFunction) Marker() string {
	return fmt.Sprintf("/*\n * %s() removed for embedding\n * Use %s() instead\n */", r.Function, r.Replacement)
}

func (r RemoveFunction) Apply(content string) (string, Outcome, error) {
	marker := r.Marker()
	if strings.Contains(content, marker) {
		return content, AlreadyApplied, nil
	}

	start, open := locateDefinition(content, r.Signature)
	if start < 0 {
		return content, NotFound, fmt.Errorf("%w: %q", ErrAnchorNotFound, r.Signature)
	}

	end, err := scanner.MatchClose([]byte(content), open)
	if err != nil {
		return content, NotFound, fmt.Errorf("%w: body of %q: %v", ErrUnbalanced, r.Signature, err)
	}

	before := strings.TrimRight(content[:start], " \t\r\n")
	after := strings.TrimLeft(content[end:], " \t\r\n")

	var b strings.Builder
	b.Grow(len(before) + len(marker) + len(after) + 4)
	if before != "" {
		b.WriteString(before)
		b.WriteString("\n\n")
	}
	b.WriteString(marker)
	b.WriteString("\n")
	if after != "" {
		b.WriteString("\n")
		b.WriteString(after)
	}

	return b.String(), Applied, nil
}

// locateDefinition returns the offset of the signature that starts a
// definition and the offset of its opening brace. Prototypes, where a ';'
// comes before the next '{', are skipped.
func locateDefinition(content, signature string) (int, int) {
	if signature == "" {
		return -1, -1
	}

	buf := []byte(content)
	from := 0
	for {
		idx := strings.Index(content[from:], signature)
		if idx < 0 {
			return -1, -1
		}
		start := from + idx
		sigEnd := start + len(signature)

		open := scanner.FindOpen(buf, sigEnd)
		if open < 0 {
			return -1, -1
		}
		if !strings.Contains(content[sigEnd:open], ";") {
			return start, open
		}
		from = sigEnd
	}
}

// InsertAfter places Text immediately after the first occurrence of Marker.
// It is skipped when Signature already appears anywhere in the content.
type InsertAfter struct {
	Label     string
	Marker    string
	Text      string
	Signature string
}

func (i InsertAfter) Name() string { return i.Label }

func (i InsertAfter) Apply(content string) (string, Outcome, error) {
	signature := i.Signature
	if signature == "" {
		signature = strings.TrimSpace(i.Text)
	}
	if signature != "" && strings.Contains(content, signature) {
		return content, AlreadyApplied, nil
	}

	idx := strings.Index(content, i.Marker)
	if i.Marker == "" || idx < 0 {
		return content, NotFound, fmt.Errorf("%w: %q", ErrMarkerNotFound, i.Marker)
	}

	pos := idx + len(i.Marker)
	return content[:pos] + i.Text + content[pos:], Applied, nil
}
