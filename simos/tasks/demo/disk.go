package demo

import (
	"bytes"
	"fmt"

	"simkern/hal"
	"simkern/simos/client/sys"
)

// diskTracks are the start tracks of the concurrent requests, scattered
// so the elevator has something to reorder.
var diskTracks = []int{9, 2, 13, 5}

// Disk writes a two sector pattern that crosses a track boundary at each
// of diskTracks on both units from concurrent children, then reads every
// pattern back.
func Disk(s *sys.Sys) int {
	started := 0
	for unit := 0; unit < hal.DiskUnits; unit++ {
		sector, track, tracks, err := s.DiskSize(unit)
		if err != nil {
			printf(s, "disk %d: size: %v", unit, err)
			return 1
		}
		printf(s, "disk %d: %d tracks of %d sectors of %d bytes", unit, tracks, track, sector)
		if tracks < 2 {
			continue
		}

		for _, t := range diskTracks {
			unit, t := unit, t%(tracks-1)
			name := fmt.Sprintf("disk%d-t%d", unit, t)
			if spawn(s, name, childPriority, func(string) int { return diskRoundTrip(s, unit, t) }) {
				started++
			}
		}
	}
	rc := waitAll(s, started)
	printf(s, "disk: %d requests done, status %d", started, rc)
	return rc
}

func diskRoundTrip(s *sys.Sys, unit, track int) int {
	data := make([]byte, 2*hal.DiskSectorSize)
	for i := range data {
		data[i] = byte(unit*31 + track*7 + i)
	}
	if st, err := s.DiskWrite(unit, track, hal.DiskTrackSize-1, data); err != nil || st != int(hal.DevOK) {
		printf(s, "disk %d track %d: write status %d: %v", unit, track, st, err)
		return 1
	}

	got := make([]byte, len(data))
	if st, err := s.DiskRead(unit, track, hal.DiskTrackSize-1, got); err != nil || st != int(hal.DevOK) {
		printf(s, "disk %d track %d: read status %d: %v", unit, track, st, err)
		return 1
	}
	if !bytes.Equal(data, got) {
		printf(s, "disk %d track %d: read back differs", unit, track)
		return 1
	}
	printf(s, "disk %d track %d: ok", unit, track)
	return 0
}
