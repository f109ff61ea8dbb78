package solver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gridplan/gridplan/pkg/log"
)

// noSolutionObjective is what cbc reports as the objective when it stopped
// without an incumbent.
const noSolutionObjective = 1e49

// CBC hands the model to the COIN-OR CBC command line solver as an LP file
// and reads back its solution file.
type CBC struct {
	*Model
	opts Options
	sol  Solution
}

var _ Solver = (*CBC)(nil)

// NewCBC returns an empty model solved by the cbc executable in opts.CBCPath.
func NewCBC(name string, opts Options) *CBC {
	if opts.CBCPath == "" {
		opts.CBCPath = DefaultOptions().CBCPath
	}
	return &CBC{Model: NewModel(name), opts: opts}
}

// Solution implements Solver.
func (c *CBC) Solution() Solution {
	return c.sol
}

func (c *CBC) args(lpPath, solPath string) []string {
	args := []string{lpPath}
	if c.opts.Gap > 0 {
		args = append(args, "-ratioGap", strconv.FormatFloat(c.opts.Gap, 'g', -1, 64))
	}
	if c.opts.TimeLimit > 0 {
		args = append(args, "-seconds", strconv.FormatFloat(c.opts.TimeLimit.Seconds(), 'f', 0, 64))
	}
	if c.opts.NodeLimit > 0 {
		args = append(args, "-maxNodes", strconv.Itoa(c.opts.NodeLimit))
	}
	return append(args, "-solve", "-solution", solPath)
}

// Optimize implements Solver. Canceling ctx kills the cbc process.
func (c *CBC) Optimize(ctx context.Context) (Status, error) {
	start := time.Now()
	c.sol = Solution{Status: StatusUnsolved, Objective: math.NaN()}

	dir, err := os.MkdirTemp("", "gridplan-cbc-")
	if err != nil {
		return StatusUnsolved, err
	}
	defer os.RemoveAll(dir)
	lpPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "model.sol")

	f, err := os.Create(lpPath)
	if err != nil {
		return StatusUnsolved, err
	}
	if err := c.WriteLP(f); err != nil {
		f.Close()
		return StatusUnsolved, fmt.Errorf("writing LP file: %w", err)
	}
	if err := f.Close(); err != nil {
		return StatusUnsolved, err
	}

	cmd := exec.CommandContext(ctx, c.opts.CBCPath, c.args(lpPath, solPath)...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		c.sol.Status = StatusLimit
		return StatusLimit, ctx.Err()
	}
	if err != nil {
		return StatusUnsolved, fmt.Errorf("cbc: %w: %s", err, lastLine(out))
	}

	sf, err := os.Open(solPath)
	if err != nil {
		return StatusUnsolved, fmt.Errorf("cbc wrote no solution: %w", err)
	}
	defer sf.Close()
	sol, err := c.readSolution(sf)
	if err != nil {
		return StatusUnsolved, err
	}
	c.sol = sol

	log.Ctx(ctx).DebugContext(ctx, "cbc solve finished",
		slog.String("model", c.Name),
		slog.String("status", sol.Status.String()),
		slog.Int("vars", len(c.Vars)),
		slog.Int("constrs", len(c.Constrs)),
		slog.Duration("duration", time.Since(start)),
	)
	return sol.Status, nil
}

// readSolution parses a cbc solution file: a status line followed by one
// "index name value reduced-cost" line per nonzero column.
func (c *CBC) readSolution(r io.Reader) (Solution, error) {
	byName := make(map[string]Var, len(c.Vars))
	for i, v := range c.Vars {
		name := lpName(v.Name)
		if _, ok := byName[name]; ok {
			return Solution{}, fmt.Errorf("variable name %s is ambiguous in LP form", name)
		}
		byName[name] = Var(i)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Solution{}, err
		}
		return Solution{}, fmt.Errorf("empty cbc solution file")
	}
	head := strings.TrimSpace(sc.Text())
	sol := Solution{Status: cbcStatus(head), Objective: math.NaN()}
	reported := math.NaN()
	if _, v, ok := strings.Cut(head, "objective value"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			reported = f
		}
	}

	values := make([]float64, len(c.Vars))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// infeasible entries are flagged with a leading **
		if len(fields) > 0 && fields[0] == "**" {
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return Solution{}, fmt.Errorf("malformed cbc solution line %q", sc.Text())
		}
		v, ok := byName[fields[1]]
		if !ok {
			return Solution{}, fmt.Errorf("cbc solution names unknown column %s", fields[1])
		}
		f, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return Solution{}, fmt.Errorf("cbc solution value for %s: %w", fields[1], err)
		}
		values[v] = f
	}
	if err := sc.Err(); err != nil {
		return Solution{}, err
	}

	switch sol.Status {
	case StatusOptimal:
	case StatusLimit:
		if math.IsNaN(reported) || reported >= noSolutionObjective {
			return sol, nil
		}
	default:
		return sol, nil
	}
	for i, v := range c.Vars {
		if v.Type != Continuous {
			values[i] = math.Round(values[i])
		}
	}
	sol.Values = values
	sol.Objective = c.ObjectiveAt(values)
	sol.Bound = sol.Objective
	if sol.Status == StatusLimit {
		sol.Bound = math.Inf(-1)
	}
	return sol, nil
}

func cbcStatus(head string) Status {
	switch {
	case strings.HasPrefix(head, "Optimal"):
		return StatusOptimal
	case strings.HasPrefix(head, "Infeasible"), strings.HasPrefix(head, "Integer infeasible"):
		return StatusInfeasible
	case strings.HasPrefix(head, "Unbounded"):
		return StatusUnbounded
	case strings.HasPrefix(head, "Stopped"):
		return StatusLimit
	}
	return StatusUnsolved
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}
