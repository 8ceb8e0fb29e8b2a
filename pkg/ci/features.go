package ci

// LanguageFeature describes what a backend can do for one programming
// language. The matrix is populated once per active backend at process start
// and consulted before a feature is offered to an exercise.
type LanguageFeature struct {
	Language              Language
	SequentialRuns        bool
	StaticCodeAnalysis    bool
	TestwiseCoverage      bool
	CustomizedCheckout    bool
	AuxiliaryRepositories bool
	PlagiarismCheck       bool
	PackageNameRequired   bool
	ProjectTypes          []ProjectType
}

// FeatureMatrix maps languages to their capabilities. It is read-only after
// construction.
type FeatureMatrix map[Language]LanguageFeature

// Supports reports whether the backend supports the given language at all.
func (m FeatureMatrix) Supports(language Language) bool {
	_, ok := m[language]
	return ok
}

// Feature returns the capability entry for a language.
func (m FeatureMatrix) Feature(language Language) (LanguageFeature, bool) {
	f, ok := m[language]
	return f, ok
}

// SupportsProjectType reports whether the language supports the given
// project type. An empty project type is always allowed.
func (m FeatureMatrix) SupportsProjectType(language Language, projectType ProjectType) bool {
	f, ok := m[language]
	if !ok {
		return false
	}
	if projectType == "" {
		return true
	}
	for _, pt := range f.ProjectTypes {
		if pt == projectType {
			return true
		}
	}
	return false
}
