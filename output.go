package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/narrowband/pkg/ls"
)

// manifestName is the JSON file describing one run's outputs.
const manifestName = "result.json"

// fileSafe replaces characters that cannot appear in file names.
var fileSafe = strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")

// writeOutputs writes every mesh (STL for triangle meshes, OBJ for line
// and point meshes), every domain as a .lsd file and the result manifest
// into dir. It returns the written paths.
func writeOutputs(dir string, r EvalResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	create := func(name string, write func(f *os.File) error) error {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := write(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	for i, md := range r.Meshes {
		m := md.mesh()
		base := fmt.Sprintf("%02d-%s", i, fileSafe.Replace(md.PartName))
		var err error
		if m.TriangleCount() > 0 {
			err = create(base+".stl", func(f *os.File) error { return m.WriteSTL(f) })
		} else {
			err = create(base+".obj", func(f *os.File) error { return m.WriteOBJ(f) })
		}
		if err != nil {
			return written, err
		}
	}

	for _, s := range r.Domains {
		d := r.levelSets[s.Name]
		if d == nil {
			continue
		}
		err := create(fileSafe.Replace(s.Name)+".lsd", func(f *os.File) error { return ls.Write(f, d) })
		if err != nil {
			return written, err
		}
	}

	err := create(manifestName, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	})
	return written, err
}
