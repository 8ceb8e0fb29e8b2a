package bamboo

import "github.com/edulab/cibridge/pkg/ci"

// defaultFeatures is the capability matrix of the hosted server backend. It
// carries the widest language support of all backends.
func defaultFeatures() ci.FeatureMatrix {
	return ci.FeatureMatrix{
		ci.Java: {
			Language:              ci.Java,
			SequentialRuns:        true,
			StaticCodeAnalysis:    true,
			TestwiseCoverage:      true,
			CustomizedCheckout:    true,
			AuxiliaryRepositories: true,
			PlagiarismCheck:       true,
			PackageNameRequired:   true,
			ProjectTypes:          []ci.ProjectType{ci.ProjectTypeMaven, ci.ProjectTypeGradle},
		},
		ci.Kotlin: {
			Language:              ci.Kotlin,
			SequentialRuns:        true,
			AuxiliaryRepositories: true,
			PlagiarismCheck:       true,
			PackageNameRequired:   true,
		},
		ci.Python: {
			Language:              ci.Python,
			SequentialRuns:        true,
			AuxiliaryRepositories: true,
			PlagiarismCheck:       true,
		},
		ci.C: {
			Language:              ci.C,
			StaticCodeAnalysis:    true,
			AuxiliaryRepositories: true,
			PlagiarismCheck:       true,
			ProjectTypes:          []ci.ProjectType{ci.ProjectTypeGCC, ci.ProjectTypeFACT},
		},
		ci.Swift: {
			Language:            ci.Swift,
			StaticCodeAnalysis:  true,
			PackageNameRequired: true,
			ProjectTypes:        []ci.ProjectType{ci.ProjectTypePlain, ci.ProjectTypeXcode},
		},
		ci.Haskell: {
			Language:       ci.Haskell,
			SequentialRuns: true,
		},
		ci.Empty: {
			Language: ci.Empty,
		},
	}
}
