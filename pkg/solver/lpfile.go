package solver

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// lpLineWidth keeps rows under the 255 character limit of the LP format.
const lpLineWidth = 200

// WriteLP writes the model in CPLEX LP format so it can be handed to an
// external solver. Names are rewritten to the LP name alphabet.
func (m *Model) WriteLP(w io.Writer) error {
	bw := bufio.NewWriter(w)
	names := make([]string, len(m.Vars))
	for i, v := range m.Vars {
		names[i] = lpName(v.Name)
	}

	if m.Name != "" {
		fmt.Fprintf(bw, "\\ Problem: %s\n", m.Name)
	}
	bw.WriteString("Minimize\n")
	obj := make([]Term, 0, len(m.Vars))
	for i, v := range m.Vars {
		if v.Obj != 0 {
			obj = append(obj, Term{Var: Var(i), Coef: v.Obj})
		}
	}
	writeExpr(bw, " obj:", obj, names)
	bw.WriteString("\n")

	bw.WriteString("Subject To\n")
	for _, c := range m.Constrs {
		writeExpr(bw, " "+lpName(c.Name)+":", c.Expr.Terms, names)
		fmt.Fprintf(bw, " %s %s\n", c.Sense, lpNum(c.RHS))
	}

	bw.WriteString("Bounds\n")
	for i, v := range m.Vars {
		if v.Type == Binary {
			continue
		}
		switch {
		case math.IsInf(v.UB, 1):
			if v.LB != 0 {
				fmt.Fprintf(bw, " %s >= %s\n", names[i], lpNum(v.LB))
			}
		case v.LB == v.UB:
			fmt.Fprintf(bw, " %s = %s\n", names[i], lpNum(v.LB))
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", lpNum(v.LB), names[i], lpNum(v.UB))
		}
	}

	writeSection(bw, "General", m.Vars, names, Integer)
	writeSection(bw, "Binary", m.Vars, names, Binary)
	bw.WriteString("End\n")
	return bw.Flush()
}

func writeSection(w *bufio.Writer, title string, vars []VarDef, names []string, t VarType) {
	var started bool
	for i, v := range vars {
		if v.Type != t {
			continue
		}
		if !started {
			w.WriteString(title + "\n")
			started = true
		}
		w.WriteString(" " + names[i] + "\n")
	}
}

func writeExpr(w *bufio.Writer, prefix string, terms []Term, names []string) {
	w.WriteString(prefix)
	width := len(prefix)
	if len(terms) == 0 {
		w.WriteString(" 0")
		return
	}
	for i, t := range terms {
		var s string
		switch {
		case i == 0 && t.Coef < 0:
			s = " - " + coefPrefix(-t.Coef) + names[t.Var]
		case i == 0:
			s = " " + coefPrefix(t.Coef) + names[t.Var]
		case t.Coef < 0:
			s = " - " + coefPrefix(-t.Coef) + names[t.Var]
		default:
			s = " + " + coefPrefix(t.Coef) + names[t.Var]
		}
		if width+len(s) > lpLineWidth {
			w.WriteString("\n  ")
			width = 2
		}
		w.WriteString(s)
		width += len(s)
	}
}

func coefPrefix(c float64) string {
	if c == 1 {
		return ""
	}
	return lpNum(c) + " "
}

func lpNum(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// lpName maps a name onto the characters the LP format accepts. A name may
// not start with a digit, a period or the letter e followed by a digit.
func lpName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("!\"#$%&()/,.;?@_`'{}|~", r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') || s[0] == '.' ||
		((s[0] == 'e' || s[0] == 'E') && len(s) > 1 && s[1] >= '0' && s[1] <= '9') {
		s = "_" + s
	}
	return s
}
