package handler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PoCSuffix PoC 文件名后缀
const PoCSuffix = "_exp.sol"

// Project source 目录下的一个 PoC
type Project struct {
	Path      string
	Name      string
	Date      string
	HasReport bool
}

// Discover 查找 root 下所有 *_exp.sol，按日期目录从新到旧排序
//
// since 非空时只保留日期目录不早于 since 的项目，"2024" 和 "2024-03" 都可以。
func Discover(root, since string) ([]string, error) {
	projects, err := ListProjects(root, since, "")
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(projects))
	for i, p := range projects {
		paths[i] = p.Path
	}
	return paths, nil
}

// ListProjects 同 Discover，reportName 非空时检查报告是否已存在
func ListProjects(root, since, reportName string) ([]Project, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("source 目录不可用: %w", err)
	}

	var projects []Project
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), PoCSuffix) {
			return nil
		}

		dir := filepath.Dir(path)
		date := filepath.Base(filepath.Dir(dir))
		if since != "" && date < since {
			return nil
		}

		p := Project{Path: path, Name: filepath.Base(dir), Date: date}
		if reportName != "" {
			if _, err := os.Stat(filepath.Join(dir, reportName)); err == nil {
				p.HasReport = true
			}
		}
		projects = append(projects, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("遍历 source 目录失败: %w", err)
	}

	sort.SliceStable(projects, func(i, j int) bool {
		if projects[i].Date != projects[j].Date {
			return projects[i].Date > projects[j].Date
		}
		return projects[i].Path < projects[j].Path
	})
	return projects, nil
}
