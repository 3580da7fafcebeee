package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// DefaultMaxDepth bounds folder recursion.
const DefaultMaxDepth = 64

// Lister is the subset of the Drive client the Enumerator needs.
type Lister interface {
	GetItem(ctx context.Context, id string) (*Item, error)
	ListChildren(ctx context.Context, folderID string) ([]Item, error)
}

// Enumerator turns a link into the ordered list of files it refers to.
type Enumerator struct {
	lister   Lister
	maxDepth int
	logger   *slog.Logger
}

// NewEnumerator creates an Enumerator. maxDepth <= 0 uses DefaultMaxDepth.
func NewEnumerator(lister Lister, maxDepth int, logger *slog.Logger) *Enumerator {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Enumerator{lister: lister, maxDepth: maxDepth, logger: logger}
}

// Resolve parses link and returns every file under it. A file link yields a
// single item. A folder link yields its files recursively: at every level
// folders come before files, each group sorted by name, and each subfolder's
// files appear where the subfolder sorts. Folders themselves are never
// returned. Native documents are included with size 0.
func (e *Enumerator) Resolve(ctx context.Context, link string) ([]Item, error) {
	ref, err := ParseLink(link)
	if err != nil {
		return nil, err
	}

	root, err := e.lister.GetItem(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("gdrive: resolving %s: %w", ref.ID, err)
	}

	if !root.IsFolder() {
		root.Path = root.Name

		return []Item{*root}, nil
	}

	visited := map[string]bool{}

	items, err := e.walk(ctx, root.ID, "", 0, visited)
	if err != nil {
		return nil, err
	}

	e.logger.Info("enumerated folder",
		slog.String("folder_id", root.ID),
		slog.Int("files", len(items)),
		slog.Int("folders", len(visited)),
	)

	return items, nil
}

// walk collects the files under folderID. prefix is the folder's path
// relative to the enumeration root ("" for the root itself).
func (e *Enumerator) walk(ctx context.Context, folderID, prefix string, depth int, visited map[string]bool) ([]Item, error) {
	if depth > e.maxDepth {
		return nil, fmt.Errorf("%w: %q exceeds %d levels", ErrTooDeep, prefix, e.maxDepth)
	}

	// Shortcuts and multi-parent folders can form cycles.
	if visited[folderID] {
		e.logger.Warn("skipping already visited folder",
			slog.String("folder_id", folderID),
			slog.String("path", prefix),
		)

		return nil, nil
	}

	visited[folderID] = true

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gdrive: enumeration canceled: %w", err)
	}

	children, err := e.lister.ListChildren(ctx, folderID)
	if err != nil {
		return nil, err
	}

	SortChildren(children)

	var files []Item

	for i := range children {
		child := children[i]
		child.Path = joinPath(prefix, child.Name)

		if !child.IsFolder() {
			files = append(files, child)

			continue
		}

		sub, err := e.walk(ctx, child.ID, child.Path, depth+1, visited)
		if err != nil {
			return nil, err
		}

		files = append(files, sub...)
	}

	return files, nil
}

// SortChildren orders items folders-first, then by name. The server's order
// is not relied upon.
func SortChildren(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		fi, fj := items[i].IsFolder(), items[j].IsFolder()
		if fi != fj {
			return fi
		}

		return items[i].Name < items[j].Name
	})
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + "/" + name
}

// Remote bundles a client and an enumerator bound to one caller's
// credential.
type Remote struct {
	*Client
	*Enumerator
}

// NewRemote wraps c with an Enumerator of the given depth.
func NewRemote(c *Client, maxDepth int) *Remote {
	return &Remote{Client: c, Enumerator: NewEnumerator(c, maxDepth, c.logger)}
}
