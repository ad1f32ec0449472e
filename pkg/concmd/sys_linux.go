//go:build linux

/*
Copyright 2018-2024 Craig Johnston <cjimti@gmail.com>

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

package concmd

import (
	"time"

	"golang.org/x/sys/unix"
)

// loadShift is the fixed point scale of sysinfo load averages
const loadShift = 1 << 16

func systemUptime() (time.Duration, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	return time.Duration(info.Uptime) * time.Second, true
}

func loadAverage() [3]float64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return [3]float64{}
	}
	return [3]float64{
		float64(info.Loads[0]) / loadShift,
		float64(info.Loads[1]) / loadShift,
		float64(info.Loads[2]) / loadShift,
	}
}
