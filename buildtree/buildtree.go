// Package buildtree maps file paths onto the fixed build-tree layout
// (<root>/build/{obj,bin,src,yaml,...}/[<target>/]...) used by redo rules.
//
// All functions are pure string manipulation with POSIX dirname/basename
// semantics, so results are stable regardless of whether the paths exist.
package buildtree

import (
	"errors"
	"fmt"
	"strings"
)

const buildSegment = "build"

var (
	// ErrNotInBuildDir is returned when a path has no "build" ancestor segment.
	ErrNotInBuildDir = errors.New("not in build directory")

	// ErrNoTarget is returned when a path is not in a targeted build directory.
	ErrNoTarget = errors.New("no build target in path")
)

// SplitFullFilename returns the directory, basename without extension, and
// extension of a path.
//
//	/path/to/file.txt -> (/path/to, file, .txt)
func SplitFullFilename(fullFilename string) (dir, base, ext string) {
	dir = dirname(fullFilename)
	base, ext = splitExt(basename(fullFilename))
	return dir, base, ext
}

// SplitRedoArg returns the directory and file name of a redo argument.
//
//	/path/to/file.txt -> (/path/to, file.txt)
func SplitRedoArg(redoArg string) (dir, filename string) {
	return dirname(redoArg), basename(redoArg)
}

// ModelFilename is the decomposition of a model file name such as
// my_test.my_component.tests.yaml.
type ModelFilename struct {
	Dir          string
	SpecificName string
	ModelName    string
	ModelType    string
	Ext          string
}

// SplitModelFilename extracts the parts of a model file name.
//
//	/p/my_component.component.yaml     -> (/p, "", my_component, component, yaml)
//	/p/my_test.my_component.tests.yaml -> (/p, my_test, my_component, tests, yaml)
//
// expectedType is checked against the model type when non-empty.
func SplitModelFilename(inputFilename, expectedType string) (ModelFilename, error) {
	dir, base, ext := SplitFullFilename(inputFilename)
	if ext != ".yaml" {
		return ModelFilename{}, fmt.Errorf("model file %s: extension %q is not .yaml", inputFilename, ext)
	}
	name, modelType := splitExt(base)
	if expectedType != "" && modelType != "."+expectedType {
		return ModelFilename{}, fmt.Errorf("model file %s: type %q is not %q", inputFilename, strings.TrimPrefix(modelType, "."), expectedType)
	}

	m := ModelFilename{
		Dir:       dir,
		ModelType: strings.TrimPrefix(modelType, "."),
		Ext:       ext[1:],
	}
	parts := strings.Split(name, ".")
	if len(parts) == 1 {
		m.ModelName = parts[0]
	} else {
		m.ModelName = parts[1]
		m.SpecificName = parts[0]
	}
	return m, nil
}

// get1DirPath returns the parent directory of p and that directory's name.
func get1DirPath(p string) (dirPath, dirName string) {
	dirPath = dirname(p)
	return dirPath, basename(dirPath)
}

func get1Dir(p string) string {
	_, name := get1DirPath(p)
	return name
}

// get2Dirs returns the names of the two directories above p, outermost first.
func get2Dirs(p string) (dir2, dir1 string) {
	d1 := dirname(p)
	d2 := dirname(d1)
	return basename(d2), basename(d1)
}

// get3Dirs returns the names of the three directories above p, outermost first.
func get3Dirs(p string) (dir3, dir2, dir1 string) {
	d1 := dirname(p)
	d2 := dirname(d1)
	d3 := dirname(d2)
	return basename(d3), basename(d2), basename(d1)
}

func inTargetDir(p, category string) bool {
	b, c, target := get3Dirs(p)
	return b == buildSegment && c == category && target != ""
}

func inCategoryDir(p, category string) bool {
	b, c := get2Dirs(p)
	return b == buildSegment && c == category
}

// InBuildObjDir reports whether p is in a directory like /path/to/build/obj/Linux.
func InBuildObjDir(p string) bool { return inTargetDir(p, "obj") }

// InBuildBinDir reports whether p is in a directory like /path/to/build/bin/Linux.
func InBuildBinDir(p string) bool { return inTargetDir(p, "bin") }

// InBuildSrcDir reports whether p is in a directory like /path/to/build/src.
func InBuildSrcDir(p string) bool { return inCategoryDir(p, "src") }

// InBuildYamlDir reports whether p is in a directory like /path/to/build/yaml.
func InBuildYamlDir(p string) bool { return inCategoryDir(p, "yaml") }

// InBuildTexDir reports whether p is in a directory like /path/to/build/tex.
func InBuildTexDir(p string) bool { return inCategoryDir(p, "tex") }

// InBuildSvgDir reports whether p is in a directory like /path/to/build/svg.
func InBuildSvgDir(p string) bool { return inCategoryDir(p, "svg") }

// InBuildEpsDir reports whether p is in a directory like /path/to/build/eps.
func InBuildEpsDir(p string) bool { return inCategoryDir(p, "eps") }

// InBuildPngDir reports whether p is in a directory like /path/to/build/png.
func InBuildPngDir(p string) bool { return inCategoryDir(p, "png") }

// InBuildPdfDir reports whether p is in a directory like /path/to/build/pdf.
func InBuildPdfDir(p string) bool { return inCategoryDir(p, "pdf") }

// InBuildGprDir reports whether p is in a directory like /path/to/build/gpr.
func InBuildGprDir(p string) bool { return inCategoryDir(p, "gpr") }

// InBuildTemplateDir reports whether p is in a directory like /path/to/build/template.
func InBuildTemplateDir(p string) bool { return inCategoryDir(p, "template") }

// InBuildTemplateTargetDir reports whether p is in a directory like
// /path/to/build/template/$TARGET.
func InBuildTemplateTargetDir(p string) bool { return inTargetDir(p, "template") }

// InBuildMetricDir reports whether p is in a directory like /path/to/build/metric/$TARGET.
func InBuildMetricDir(p string) bool { return inTargetDir(p, "metric") }

// GetTarget returns the build target segment of a file in an obj, bin,
// metric or targeted template directory.
//
//	/path/to/build/obj/Linux/file.o -> Linux
func GetTarget(redoArg string) (string, error) {
	if !InBuildObjDir(redoArg) &&
		!InBuildBinDir(redoArg) &&
		!InBuildMetricDir(redoArg) &&
		!InBuildTemplateTargetDir(redoArg) {
		return "", fmt.Errorf("%s: %w", redoArg, ErrNoTarget)
	}
	return get1Dir(redoArg), nil
}

// GetBuildDir walks up from the grandparent of redoArg and returns the first
// ancestor directory named "build".
//
//	/path/to/build/obj/Linux/file.o -> /path/to/build
func GetBuildDir(redoArg string) (string, error) {
	dirPath, dirName := get1DirPath(redoArg)
	for dirName != "" {
		dirPath, dirName = get1DirPath(dirPath)
		if dirName == buildSegment {
			return dirPath, nil
		}
	}
	return "", fmt.Errorf("%s: %w", redoArg, ErrNotInBuildDir)
}

// GetSrcDir returns the root source directory for a file: the directory
// above the "build" ancestor, or the file's own directory when there is
// none. Returns "." when that would be empty.
//
//	/path/to/build/obj/Linux/file.o -> /path/to
//	/path/to/file.adb               -> /path/to
func GetSrcDir(redoArg string) string {
	dirPath, dirName := get1DirPath(redoArg)
	toReturn := dirPath
	for dirName != "" {
		dirPath, dirName = get1DirPath(dirPath)
		if dirName == buildSegment {
			toReturn = dirname(dirPath)
			break
		}
	}
	if toReturn == "" {
		return "."
	}
	return toReturn
}

// InBuildDir reports whether any ancestor directory of redoArg is named "build".
//
//	/path/to/build/file.txt         -> true
//	/path/to/build/obj/Linux/file.o -> true
//	/path/to/file.svg               -> false
func InBuildDir(redoArg string) bool {
	dirPath, dirName := get1DirPath(redoArg)
	for dirName != "" {
		if dirName == buildSegment {
			return true
		}
		dirPath, dirName = get1DirPath(dirPath)
	}
	return false
}

// BaseNoExt returns the file name without directory or extension.
func BaseNoExt(sourceFilename string) string {
	base, _ := splitExt(basename(sourceFilename))
	return base
}

// SrcFileToObjFile computes the object file produced for a source file and
// build target.
//
//	/path/to/file.adb, Linux -> /path/to/build/obj/Linux/file.o
func SrcFileToObjFile(sourceFilename, target string) string {
	srcDir := GetSrcDir(sourceFilename)
	return join(srcDir, buildSegment+"/obj/"+target+"/"+BaseNoExt(sourceFilename)+".o")
}
