// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package idgen

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/sony/sonyflake"
)

var flakeEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultFlakeGenerator issues sort run ids and the process instance id.
var DefaultFlakeGenerator = mustFlakeGenerator()

// SonyFlakeGenerator issues positive ids that increase roughly with time.
type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// newFlakeGenerator uses machineID, or sonyflake's private-IP default when
// machineID is nil.
func newFlakeGenerator(machineID func() (uint16, error)) (*SonyFlakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: flakeEpoch,
		MachineID: machineID,
	})
	if err != nil {
		return nil, err
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

// pidMachineID stands in on hosts without a private IPv4 address, such as a
// laptop on a public network.
func pidMachineID() (uint16, error) {
	return uint16(os.Getpid()), nil
}

func mustFlakeGenerator() *SonyFlakeGenerator {
	if g, err := newFlakeGenerator(nil); err == nil {
		return g
	}
	g, err := newFlakeGenerator(pidMachineID)
	if err != nil {
		panic(fmt.Errorf("sonyflake: %w", err))
	}
	return g
}

// NextID falls back to a random positive id once the sonyflake clock
// overflows.
func (sf *SonyFlakeGenerator) NextID() int64 {
	v, err := sf.sf.NextID()
	if err != nil {
		return rand.Int64N(1 << 62)
	}
	return int64(v)
}

// NextRunID returns a short base36 id for one sort run.
func NextRunID() string {
	return strconv.FormatInt(DefaultFlakeGenerator.NextID(), 36)
}
