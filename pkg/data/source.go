package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/gridplan/gridplan/pkg/types"
)

const (
	plantsFile = "plants.csv"
	costsFile  = "costs.csv"
	loadFile   = "load.csv"
)

// opener returns the named file of the data layout. ok is false when the
// file does not exist.
type opener func(ctx context.Context, name string) (rc io.ReadCloser, ok bool, err error)

// layout implements Store over any opener.
type layout struct {
	open opener
}

func (l layout) required(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, ok, err := l.open(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.MissingData(name, "", nil, "file not found")
	}
	return rc, nil
}

func (l layout) Plants(ctx context.Context) ([]types.Plant, error) {
	rc, err := l.required(ctx, plantsFile)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadPlants(plantsFile, rc)
}

func (l layout) Costs(ctx context.Context) (types.CostTables, error) {
	rc, err := l.required(ctx, costsFile)
	if err != nil {
		return types.CostTables{}, err
	}
	defer rc.Close()
	return ReadCostTables(costsFile, rc)
}

func (l layout) Load(ctx context.Context) (types.LoadCurve, error) {
	rc, err := l.required(ctx, loadFile)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadLoadCurve(loadFile, rc)
}

func (l layout) dataset(ctx context.Context, name string) (Dataset, bool, error) {
	// keys come from plant records; keep them inside the layout
	if strings.ContainsAny(name, `\`) || strings.Contains(name, "..") {
		return Dataset{}, false, types.MalformedData(name, "invalid dataset name")
	}
	rc, ok, err := l.open(ctx, path.Join("sensitivity", name+".csv"))
	if err != nil || !ok {
		return Dataset{}, false, err
	}
	defer rc.Close()
	d, err := ReadDataset(name, rc)
	if err != nil {
		return Dataset{}, false, err
	}
	return d, true, nil
}

func (l layout) PointSource(ctx context.Context, shortName string, month int) (Dataset, bool, error) {
	return l.dataset(ctx, pointName(strings.ToLower(shortName), month))
}

func (l layout) Unit(ctx context.Context, plantID string) (Dataset, bool, error) {
	return l.dataset(ctx, unitName(plantID))
}

func (l layout) Regional(ctx context.Context, region string) (Dataset, bool, error) {
	return l.dataset(ctx, regionalName(region))
}

// DirSource reads the data layout from a filesystem.
type DirSource struct {
	layout
	fsys fs.FS
}

var _ Store = (*DirSource)(nil)

// NewDirSource reads the data layout under root.
func NewDirSource(root string) *DirSource {
	return NewFSSource(os.DirFS(root))
}

// NewFSSource reads the data layout from fsys.
func NewFSSource(fsys fs.FS) *DirSource {
	s := &DirSource{fsys: fsys}
	s.layout = layout{open: s.openFile}
	return s
}

func (s *DirSource) openFile(ctx context.Context, name string) (io.ReadCloser, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f, err := s.fsys.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", name, err)
	}
	return f, true, nil
}

// HTTPSource reads the data layout below a base URL. A 404 means the
// dataset is not available.
type HTTPSource struct {
	layout
	base   *url.URL
	client *http.Client
}

var _ Store = (*HTTPSource)(nil)

// NewHTTPSource returns a source rooted at base.
func NewHTTPSource(base string, client *http.Client) (*HTTPSource, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid data url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid data url scheme: %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	s := &HTTPSource{base: u, client: client}
	s.layout = layout{open: s.get}
	return s, nil
}

func (s *HTTPSource) get(ctx context.Context, name string) (io.ReadCloser, bool, error) {
	u := s.base.JoinPath(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetching %s: %w", name, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, false, fmt.Errorf("fetching %s: unexpected status %d", name, resp.StatusCode)
	}
	return resp.Body, true, nil
}
