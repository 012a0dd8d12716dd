package bootstrap

import "strings"

// ifState tracks one nested #ifdef/#ifndef's emit decision, ported from
// original_source/src/clike/preproc.c's clike_preprocess (the distilled
// spec drops the exact nesting rules; this keeps them): outerActive is
// whether the enclosing block was emitting when this block opened,
// branchTaken records whether some branch of this if/elif/else chain has
// already matched, so later elif/else branches in the same chain stay off.
type ifState struct {
	outerActive bool
	branchTaken bool
}

// Preprocess strips lines conditioned out by #ifdef/#ifndef/#elif/#else/
// #endif against defines (spec §4.9 item 2: "a conditional preprocessor
// that recognizes #ifdef/#ifndef/#elif/#else/#endif against a small set of
// compile-time defines, e.g. SDL_ENABLED"). Directive lines themselves are
// never emitted; every other line is emitted only while every enclosing
// block is active.
func Preprocess(source string, defines map[string]bool) string {
	var out strings.Builder
	var stack []ifState
	emit := true

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		isDirective := strings.HasPrefix(trimmed, "#")
		if isDirective {
			directive, arg, _ := strings.Cut(strings.TrimSpace(trimmed[1:]), " ")
			arg = strings.TrimSpace(arg)
			switch directive {
			case "ifdef":
				cond := defines[arg]
				stack = append(stack, ifState{outerActive: emit, branchTaken: cond && emit})
				emit = cond && emit
			case "ifndef":
				cond := !defines[arg]
				stack = append(stack, ifState{outerActive: emit, branchTaken: cond && emit})
				emit = cond && emit
			case "elif", "elseif":
				if len(stack) > 0 {
					st := &stack[len(stack)-1]
					if !st.outerActive || st.branchTaken {
						emit = false
					} else {
						cond := defines[arg]
						emit = st.outerActive && cond
						if emit {
							st.branchTaken = true
						}
					}
				}
			case "else":
				if len(stack) > 0 {
					st := &stack[len(stack)-1]
					if !st.outerActive || st.branchTaken {
						emit = false
					} else {
						emit = true
						st.branchTaken = true
					}
				}
			case "endif":
				if len(stack) > 0 {
					st := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					emit = st.outerActive
				}
			}
		} else if emit {
			out.WriteString(line)
		}
		if i < len(lines)-1 {
			out.WriteString("\n")
		}
	}
	return out.String()
}
