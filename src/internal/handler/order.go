package handler

import (
	"path/filepath"
	"sort"

	"github.com/admi-n/poc-excavator/src/internal"
)

// orderByPaths 把并发提取的结果恢复成输入顺序
func orderByPaths(records []internal.EvidenceRecord, paths []string) []internal.EvidenceRecord {
	index := make(map[string]int, len(paths))
	for i, p := range paths {
		if _, ok := index[p]; !ok {
			index[p] = i
		}
	}
	out := append([]internal.EvidenceRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return index[out[i].SourcePath] < index[out[j].SourcePath]
	})
	return out
}

func projectName(path string) string {
	return filepath.Base(filepath.Dir(path))
}
