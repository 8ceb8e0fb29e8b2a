package buildscript

// Task is one step of an assembled build pipeline. Final tasks run after the
// default tasks regardless of their outcome, the backends map them onto
// their own final-task concept.
type Task struct {
	Description string
	Script      string
	Final       bool
}

// Artifact declares a build output the backend should collect after the run.
type Artifact struct {
	Name        string
	Location    string
	CopyPattern string
}

// Pipeline is the ordered task list for one build plan together with the
// artifacts to collect, the test result glob the report parser reads, and
// the build agent capabilities the plan requires.
type Pipeline struct {
	Tasks        []Task
	Artifacts    []Artifact
	ResultGlob   string
	Requirements []string
}

// DefaultTasks returns the tasks that make up the regular run, in order.
func (p *Pipeline) DefaultTasks() []Task {
	var tasks []Task
	for _, t := range p.Tasks {
		if !t.Final {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// FinalTasks returns the tasks appended after the regular run, in order.
func (p *Pipeline) FinalTasks() []Task {
	var tasks []Task
	for _, t := range p.Tasks {
		if t.Final {
			tasks = append(tasks, t)
		}
	}
	return tasks
}
