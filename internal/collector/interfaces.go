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

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// Source is a pluggable provider of resource readings.
type Source interface {
	// Name returns the unique name of this source (e.g., "host", "nvidia-smi").
	Name() string

	// Collect returns the current readings. Metrics the source cannot provide
	// are left nil. A non-nil error may accompany a partially filled reading.
	Collect(ctx context.Context) (interfaces.ResourceReading, error)
}

// Primer is implemented by sources that compute rates between consecutive
// reads. Prime records the baseline for the first tick of a sampling window.
type Primer interface {
	Prime(ctx context.Context) error
}
