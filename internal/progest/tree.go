package progest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// TreeNode is one entry of a scanned directory structure.
type TreeNode struct {
	Name     string      `json:"name" cbor:"name"`
	Path     string      `json:"path" cbor:"path"`
	IsDir    bool        `json:"is_dir" cbor:"is_dir"`
	Size     int64       `json:"size,omitempty" cbor:"size,omitempty"`
	Mode     uint32      `json:"mode" cbor:"mode"`
	Children []*TreeNode `json:"children,omitempty" cbor:"children,omitempty"`
}

// Count returns the number of directories and files below n, n included.
func (n *TreeNode) Count() (dirs, files int) {
	if n.IsDir {
		dirs++
	} else {
		files++
	}
	for _, c := range n.Children {
		d, f := c.Count()
		dirs += d
		files += f
	}
	return dirs, files
}

// ProjectTree scans the directory structure of a registered project.
// A maxDepth of zero or less means unlimited.
func (l *Library) ProjectTree(ctx context.Context, ref string, maxDepth int) (*TreeNode, error) {
	p, err := l.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	return ScanTree(ctx, p.RootPath(), maxDepth)
}

// ScanTree scans the directory structure under root. Entries are sorted by
// name, and ".git" directories are listed but not descended into. Symbolic
// links are reported, never followed.
func ScanTree(ctx context.Context, root string, maxDepth int) (*TreeNode, error) {
	abs, err := expandTarget(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", abs, err)
	}
	node := &TreeNode{Name: filepath.Base(abs), Path: ".", IsDir: info.IsDir(), Mode: uint32(info.Mode())}
	if !node.IsDir {
		node.Size = info.Size()
		return node, nil
	}
	if err := scanDir(ctx, os.DirFS(abs), node, 1, maxDepth); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", abs, err)
	}
	return node, nil
}

func scanDir(ctx context.Context, fsys fs.FS, dir *TreeNode, depth, maxDepth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := fs.ReadDir(fsys, dir.Path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return err
		}
		child := &TreeNode{
			Name:  e.Name(),
			Path:  path.Join(dir.Path, e.Name()),
			IsDir: e.IsDir(),
			Mode:  uint32(info.Mode()),
		}
		if !child.IsDir {
			child.Size = info.Size()
		}
		dir.Children = append(dir.Children, child)

		if child.IsDir && e.Name() != ".git" && (maxDepth <= 0 || depth < maxDepth) {
			if err := scanDir(ctx, fsys, child, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}
