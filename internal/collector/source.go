/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package collector

import (
	"context"
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// CompositeSource merges several sources. For every metric the value of the
// first source that provides it wins.
type CompositeSource struct {
	sources []Source
}

// NewCompositeSource returns a source combining the given sources in priority order.
func NewCompositeSource(sources ...Source) *CompositeSource {
	return &CompositeSource{sources: sources}
}

// Name returns "composite".
func (c *CompositeSource) Name() string {
	return "composite"
}

// Sources returns the combined sources in priority order.
func (c *CompositeSource) Sources() []Source {
	return c.sources
}

// Prime primes every source that needs a baseline.
func (c *CompositeSource) Prime(ctx context.Context) error {
	var errs []error
	for _, s := range c.sources {
		p, ok := s.(Primer)
		if !ok {
			continue
		}
		if err := p.Prime(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Collect queries every source and merges the readings.
func (c *CompositeSource) Collect(ctx context.Context) (interfaces.ResourceReading, error) {
	var merged interfaces.ResourceReading
	var errs []error
	for _, s := range c.sources {
		r, err := s.Collect(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
		merged = Merge(merged, r)
	}
	return merged, utilerrors.NewAggregate(errs)
}

// Merge fills the nil fields of base from other.
func Merge(base, other interfaces.ResourceReading) interfaces.ResourceReading {
	if base.CPUPercent == nil {
		base.CPUPercent = other.CPUPercent
	}
	if base.MemoryPercent == nil {
		base.MemoryPercent = other.MemoryPercent
	}
	if base.AcceleratorUtilPercent == nil {
		base.AcceleratorUtilPercent = other.AcceleratorUtilPercent
	}
	if base.AcceleratorTempCelsius == nil {
		base.AcceleratorTempCelsius = other.AcceleratorTempCelsius
	}
	return base
}
