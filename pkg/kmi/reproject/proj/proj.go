// Package proj implements reproject.Transformer with the PROJ library.
package proj

import (
	"fmt"
	"sync"

	goproj "github.com/twpayne/go-proj/v10"

	"github.com/lox/openkmi/pkg/kmi/reproject"
)

// Transformer reprojects with PROJ. Transformation objects are created
// once per CRS pair and reused. It is safe for concurrent use.
type Transformer struct {
	mu  sync.Mutex
	pjs map[[2]string]*goproj.PJ
}

var _ reproject.Transformer = (*Transformer)(nil)

// New returns an empty Transformer. Call Close to release the cached
// transformation objects.
func New() *Transformer {
	return &Transformer{pjs: make(map[[2]string]*goproj.PJ)}
}

// Transform implements reproject.Transformer.
func (p *Transformer) Transform(from, to string, x, y float64) (float64, float64, error) {
	from, to = reproject.Normalize(from), reproject.Normalize(to)
	if from == to {
		return x, y, nil
	}

	// PJ objects are not safe for concurrent use.
	p.mu.Lock()
	defer p.mu.Unlock()

	pj, err := p.get(from, to)
	if err != nil {
		return 0, 0, err
	}
	out, err := pj.Forward(goproj.NewCoord(x, y, 0, 0))
	if err != nil {
		return 0, 0, fmt.Errorf("transform (%g, %g) %s -> %s: %w", x, y, from, to, err)
	}
	return out.X(), out.Y(), nil
}

func (p *Transformer) get(from, to string) (*goproj.PJ, error) {
	key := [2]string{from, to}
	if pj, ok := p.pjs[key]; ok {
		return pj, nil
	}
	raw, err := goproj.NewCRSToCRS(from, to, nil)
	if err != nil {
		return nil, fmt.Errorf("create transformation %s -> %s: %w", from, to, err)
	}
	defer raw.Destroy()
	pj, err := raw.NormalizeForVisualization()
	if err != nil {
		return nil, fmt.Errorf("normalize transformation %s -> %s: %w", from, to, err)
	}
	p.pjs[key] = pj
	return pj, nil
}

// Close releases all cached transformations.
func (p *Transformer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, pj := range p.pjs {
		pj.Destroy()
		delete(p.pjs, key)
	}
}
