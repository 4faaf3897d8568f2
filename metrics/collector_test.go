package metrics

import (
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wippyai/wasmvm/types"
)

type fixedSource struct {
	m   types.Metrics
	err error
}

func (s fixedSource) GetMetrics() (*types.Metrics, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.m, nil
}

func gather(t *testing.T, src Source) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewRegistry()
	if _, err := Register(reg, "wasmvm", src, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func valueFor(f *dto.MetricFamily, tier string) float64 {
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "tier" && l.GetValue() == tier {
				if c := m.GetCounter(); c != nil {
					return c.GetValue()
				}
				return m.GetGauge().GetValue()
			}
		}
	}
	return -1
}

func TestCollector(t *testing.T) {
	families := gather(t, fixedSource{m: types.Metrics{
		HitsPinnedMemoryCache:     3,
		HitsMemoryCache:           5,
		HitsFsCache:               7,
		Misses:                    2,
		ElementsPinnedMemoryCache: 1,
		ElementsMemoryCache:       4,
		SizePinnedMemoryCache:     1024,
		SizeMemoryCache:           4096,
	}})

	tests := []struct {
		family string
		tier   string
		want   float64
	}{
		{"wasmvm_cache_hits_total", "pinned", 3},
		{"wasmvm_cache_hits_total", "memory", 5},
		{"wasmvm_cache_hits_total", "fs", 7},
		{"wasmvm_cache_elements", "pinned", 1},
		{"wasmvm_cache_elements", "memory", 4},
		{"wasmvm_cache_size_bytes", "pinned", 1024},
		{"wasmvm_cache_size_bytes", "memory", 4096},
	}
	for _, tt := range tests {
		f, ok := families[tt.family]
		if !ok {
			t.Fatalf("family %s missing", tt.family)
		}
		if got := valueFor(f, tt.tier); got != tt.want {
			t.Errorf("%s{tier=%s} = %v, want %v", tt.family, tt.tier, got, tt.want)
		}
	}

	misses := families["wasmvm_cache_misses_total"]
	if misses == nil || misses.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("misses = %v", misses)
	}
}

func TestCollector_SourceError(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := Register(reg, "wasmvm", fixedSource{err: stderrors.New("cache closed")}, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Gather(); err == nil {
		t.Fatal("expected gather error")
	}
}

func TestRegister_Twice(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := fixedSource{}
	if _, err := Register(reg, "wasmvm", src, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := Register(reg, "wasmvm", src, nil); err == nil {
		t.Fatal("duplicate registration must fail")
	}
}
