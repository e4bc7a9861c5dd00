// stack.go parses Go stack traces into report frames.

package crashline

import (
	"regexp"
	"strconv"
	"strings"
)

// StackTracer is implemented by errors that carry the stack they were raised on.
type StackTracer interface {
	StackTrace() string
}

var (
	// "main.doSomething(0x1234)" or "pkg/sub.(*T).Method(...)"
	funcLinePattern = regexp.MustCompile(`^([^\s]+)\(([^()]*)\)$`)

	// "\t/path/to/file.go:42 +0x1d"
	fileLinePattern = regexp.MustCompile(`^(.+?):(\d+)(?:\s+\+0x[0-9a-fA-F]+)?$`)
)

// ParseStackTrace turns the output of runtime/debug.Stack into frames.
// Goroutine headers and unparseable lines are skipped.
func ParseStackTrace(trace string) []StackFrame {
	if trace == "" {
		return nil
	}

	var frames []StackFrame
	var pending *StackFrame

	for _, raw := range strings.Split(trace, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "goroutine ") {
			continue
		}

		isFileLine := strings.HasPrefix(raw, "\t")
		if !isFileLine {
			m := funcLinePattern.FindStringSubmatch(line)
			if m == nil {
				pending = nil
				continue
			}
			class, method := splitFuncName(m[1])
			frames = append(frames, StackFrame{ClassName: class, MethodName: method})
			pending = &frames[len(frames)-1]
			continue
		}

		if pending == nil {
			continue
		}
		if m := fileLinePattern.FindStringSubmatch(line); m != nil {
			pending.FileName = m[1]
			pending.LineNumber, _ = strconv.Atoi(m[2])
		}
		pending = nil
	}

	return frames
}

// splitFuncName splits "github.com/a/b.(*T).Method" into
// ("github.com/a/b.(*T)", "Method").
func splitFuncName(name string) (class, method string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.LastIndex(name, ".")
	if dot <= slash {
		return "", name
	}
	return name[:dot], name[dot+1:]
}
