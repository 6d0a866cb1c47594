package buildtree

// Category is the build-tree directory class a path belongs to.
type Category string

const (
	CategoryNone           Category = ""
	CategoryObj            Category = "obj"
	CategoryBin            Category = "bin"
	CategorySrc            Category = "src"
	CategoryYaml           Category = "yaml"
	CategoryTex            Category = "tex"
	CategorySvg            Category = "svg"
	CategoryEps            Category = "eps"
	CategoryPng            Category = "png"
	CategoryPdf            Category = "pdf"
	CategoryGpr            Category = "gpr"
	CategoryTemplate       Category = "template"
	CategoryTemplateTarget Category = "template/target"
	CategoryMetric         Category = "metric/target"
)

var categoryChecks = []struct {
	category Category
	match    func(string) bool
}{
	{CategoryObj, InBuildObjDir},
	{CategoryBin, InBuildBinDir},
	{CategoryTemplateTarget, InBuildTemplateTargetDir},
	{CategoryMetric, InBuildMetricDir},
	{CategorySrc, InBuildSrcDir},
	{CategoryYaml, InBuildYamlDir},
	{CategoryTex, InBuildTexDir},
	{CategorySvg, InBuildSvgDir},
	{CategoryEps, InBuildEpsDir},
	{CategoryPng, InBuildPngDir},
	{CategoryPdf, InBuildPdfDir},
	{CategoryGpr, InBuildGprDir},
	{CategoryTemplate, InBuildTemplateDir},
}

// Classify returns the category of p, or CategoryNone. The three-segment
// categories and the two-segment ones cannot both match a single path.
func Classify(p string) Category {
	for _, c := range categoryChecks {
		if c.match(p) {
			return c.category
		}
	}
	return CategoryNone
}

// Targeted reports whether files in the category carry a target segment.
func (c Category) Targeted() bool {
	switch c {
	case CategoryObj, CategoryBin, CategoryTemplateTarget, CategoryMetric:
		return true
	}
	return false
}

// Location is the derived placement of a path in the build tree.
type Location struct {
	Path     string
	Category Category
	Target   string
	InBuild  bool
	BuildDir string
	SrcDir   string
}

// Locate derives every build-tree property of p. Fields that do not apply
// are left empty.
func Locate(p string) Location {
	loc := Location{
		Path:     p,
		Category: Classify(p),
		InBuild:  InBuildDir(p),
		SrcDir:   GetSrcDir(p),
	}
	if loc.Category.Targeted() {
		loc.Target, _ = GetTarget(p)
	}
	if dir, err := GetBuildDir(p); err == nil {
		loc.BuildDir = dir
	}
	return loc
}
