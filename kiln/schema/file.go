package schema

// Pipeline is the parsed job descriptor. It is immutable after loading;
// everything downstream (scheduler, orchestrator, report) reads from it
// and never writes back.
type Pipeline struct {
	Branches Branches          `yaml:"branches,omitempty"`
	Image    string            `yaml:"image,omitempty"`
	Services []ServiceRef      `yaml:"services,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Secrets  Secrets           `yaml:"secrets,omitempty"`
	Install  []Step            `yaml:"install,omitempty"`
	Test     []Step            `yaml:"test,omitempty"`
	OnFinish []Step            `yaml:"on_finish,omitempty"`
}

// Branches restricts which branches a pipeline runs for. An empty Only
// list means every branch is allowed.
type Branches struct {
	Only []string `yaml:"only,omitempty"`
}

// Allows reports whether the pipeline should run for the given branch.
func (b Branches) Allows(branch string) bool {
	if len(b.Only) == 0 {
		return true
	}
	for _, name := range b.Only {
		if name == branch {
			return true
		}
	}
	return false
}

// Secrets declares variables that must be supplied by the secret store.
type Secrets struct {
	Required []string `yaml:"required,omitempty"`
}

// Stages flattens the fixed install/test/on_finish keys into the ordered
// stage list the scheduler consumes. Empty stages are omitted so the
// report only carries stages that exist in the descriptor.
func (p *Pipeline) Stages() []Stage {
	var stages []Stage
	if len(p.Install) > 0 {
		stages = append(stages, Stage{Name: StageInstall, Policy: PolicyFailFast, Steps: p.Install})
	}
	if len(p.Test) > 0 {
		stages = append(stages, Stage{Name: StageTest, Policy: PolicyFailFast, Steps: p.Test})
	}
	if len(p.OnFinish) > 0 {
		stages = append(stages, Stage{Name: StageFinish, Policy: PolicyAlwaysRun, Steps: p.OnFinish})
	}
	return stages
}
