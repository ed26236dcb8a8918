package failure

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// ParseStack turns the text produced by runtime/debug.Stack into frames.
//
// Frames up to and including the panic call are dropped, as are frames
// belonging to the runtime itself, so the first frame is the raise site.
// Unparseable input yields nil.
func ParseStack(stack []byte) []Frame {
	if len(stack) == 0 {
		return nil
	}

	var (
		frames   []Frame
		fn       string
		panicIdx = -1
	)
	sc := bufio.NewScanner(bytes.NewReader(stack))
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "goroutine "), strings.TrimSpace(line) == "":
			fn = ""
		case strings.HasPrefix(line, "\t"):
			if fn == "" {
				continue
			}
			file, no := splitFileLine(strings.TrimSpace(line))
			if fn == "panic" {
				panicIdx = len(frames)
			}
			frames = append(frames, Frame{Function: fn, File: file, Line: no})
			fn = ""
		default:
			fn = funcName(line)
		}
	}

	if panicIdx >= 0 {
		frames = frames[panicIdx+1:]
	}
	out := frames[:0]
	for _, f := range frames {
		if isRuntimeFrame(f.Function) {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// funcName strips the argument list and "created by" decoration from a
// function line of a stack dump.
func funcName(line string) string {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "created by "); ok {
		if i := strings.Index(rest, " in goroutine "); i >= 0 {
			rest = rest[:i]
		}
		return rest
	}
	if i := strings.LastIndexByte(line, '('); i > 0 {
		return line[:i]
	}
	return line
}

// splitFileLine splits "/path/file.go:42 +0x1d" into its path and line.
func splitFileLine(s string) (string, int) {
	if i := strings.LastIndex(s, " +0x"); i >= 0 {
		s = s[:i]
	}
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return s, 0
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return s, 0
	}
	return s[:i], n
}

func isRuntimeFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") || strings.HasPrefix(fn, "runtime/debug.")
}
