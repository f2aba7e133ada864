// Package scan discovers candidate PVs under a device directory (normally
// /dev, overridable for tests): it lists entries, orders them
// deterministically, reads each candidate's first four sectors, and hands
// anything carrying a valid LVM2 label to pvheader. Per spec.md §7's
// propagation policy, a bad candidate (I/O failure, corrupt or absent
// label) is recorded and skipped rather than aborting the rest of the
// scan.
package scan

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/fvbommel/sortorder"

	"github.com/agrover/melvin/mlog"
	"github.com/agrover/melvin/pvheader"
)

// labelSearchBytes is how much of a candidate device scan reads before
// handing it to pvheader.FindLabel.
const labelSearchBytes = 4 * pvheader.SectorSize

// Found is a device that carried a valid LVM2 label and PV header.
type Found struct {
	Path   string
	Label  *pvheader.Label
	Header *pvheader.Header
}

// Skipped records a candidate that did not yield a usable PV, and why.
type Skipped struct {
	Path string
	Err  error
}

// Result is the outcome of a full directory scan.
type Result struct {
	Found   []Found
	Skipped []Skipped
}

// Devices scans root for PV candidates. Entries are visited in natural
// sort order (sda2 before sda10), via github.com/fvbommel/sortorder, so
// PV-iteration order downstream in vgops (deterministic allocation and
// per-device commit ordering, spec.md §4.6/§5) does not depend on the
// directory's unspecified readdir order.
func Devices(root string) (*Result, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	isDir := map[string]bool{}
	for _, e := range entries {
		names = append(names, e.Name())
		isDir[e.Name()] = e.IsDir()
	}

	sort.Sort(sortorder.Natural(names))

	res := &Result{}
	for _, name := range names {
		if isDir[name] {
			continue
		}

		path := filepath.Join(root, name)
		found, err := scanOne(path)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Path: path, Err: err})
			mlog.Default.Debug("scan: skipping candidate", map[string]interface{}{"path": path, "error": err.Error()})
			continue
		}

		res.Found = append(res.Found, *found)
	}

	return res, nil
}

func scanOne(path string) (*Found, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	buf := make([]byte, labelSearchBytes)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return nil, err
	}

	lbl, err := pvheader.FindLabel(buf[:n])
	if err != nil {
		return nil, err
	}

	headerStart := lbl.Sector*pvheader.SectorSize + uint64(lbl.HeaderOffset)
	headerBuf := make([]byte, 512)
	if _, err := f.ReadAt(headerBuf, int64(headerStart)); err != nil {
		return nil, err
	}

	hdr, err := pvheader.ParseHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	return &Found{Path: path, Label: lbl, Header: hdr}, nil
}
