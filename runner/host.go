// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runner

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
)

// Host describes the machine a workload ran on.
type Host struct {
	Name     string
	CPUModel string
}

// HostFacts reports the current host's name and CPU model.
func HostFacts(ctx context.Context) (Host, error) {
	var h Host
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return h, fmt.Errorf("reading host info: %w", err)
	}
	h.Name = info.Hostname

	cpus, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return h, fmt.Errorf("reading cpu info: %w", err)
	}
	if len(cpus) > 0 {
		h.CPUModel = cpus[0].ModelName
	}
	return h, nil
}
