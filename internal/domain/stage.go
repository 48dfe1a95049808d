package domain

// StageName — имя стадии пайплайна flavor'а.
type StageName string

const (
	StageBeforeInstall StageName = "before_install"
	StageInstall       StageName = "install"
	StageBeforeScript  StageName = "before_script"
	StageScript        StageName = "script"
	StageBeforeCache   StageName = "before_cache"
	StageCache         StageName = "cache"
	StageCleanup       StageName = "cleanup"

	// StageExecute — весь пайплайн целиком (используется только как
	// имя команды, своих действий не имеет).
	StageExecute StageName = "execute"
)

// AllStages — все стадии, которые могут иметь действия.
var AllStages = []StageName{
	StageBeforeInstall,
	StageInstall,
	StageBeforeScript,
	StageScript,
	StageBeforeCache,
	StageCache,
	StageCleanup,
}

// PipelineOrder возвращает фиксированный порядок стадий запуска.
//
// before_cache и cache выполняются только в полном CI-контексте.
// cleanup в порядок не входит — его вызывает драйвер отдельно.
func PipelineOrder(fullCI bool) []StageName {
	order := []StageName{
		StageBeforeInstall,
		StageInstall,
		StageBeforeScript,
		StageScript,
	}
	if fullCI {
		order = append(order, StageBeforeCache, StageCache)
	}
	return order
}

// IsValid возвращает true для стадий, которые могут иметь действия.
func (s StageName) IsValid() bool {
	for _, st := range AllStages {
		if st == s {
			return true
		}
	}
	return false
}

// String возвращает строковое представление StageName.
func (s StageName) String() string {
	return string(s)
}
