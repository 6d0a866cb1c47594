package buildtree

import "strings"

// dirname follows POSIX dirname as redo passes it to .do scripts: the
// directory of "file.txt" is "", and trailing slashes are dropped unless the
// head is only slashes. path.Dir differs on both counts.
func dirname(p string) string {
	i := strings.LastIndexByte(p, '/') + 1
	head := p[:i]
	if head != "" && head != strings.Repeat("/", len(head)) {
		head = strings.TrimRight(head, "/")
	}
	return head
}

func basename(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// splitExt splits off the final extension. Leading dots of a file name do
// not start an extension, so ".profile" has none.
func splitExt(p string) (root, ext string) {
	sep := strings.LastIndexByte(p, '/')
	dot := strings.LastIndexByte(p, '.')
	if dot > sep {
		for i := sep + 1; i < dot; i++ {
			if p[i] != '.' {
				return p[:dot], p[dot:]
			}
		}
	}
	return p, ""
}

// join appends elem to dir without cleaning, so "." stays "./x".
func join(dir, elem string) string {
	if dir == "" || strings.HasSuffix(dir, "/") {
		return dir + elem
	}
	return dir + "/" + elem
}
