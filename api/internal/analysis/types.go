package analysis

// MetricName - один из фиксированного набора показателей скана.
type MetricName string

const (
	MetricWeight             MetricName = "weight"
	MetricSkeletalMuscleMass MetricName = "skeletal muscle mass"
	MetricBodyFatMass        MetricName = "body fat mass"
	MetricBodyFatPercentage  MetricName = "body fat percentage"
	MetricBMI                MetricName = "BMI"
	MetricWaistHipRatio      MetricName = "waist-hip ratio"
	MetricVisceralFatLevel   MetricName = "visceral fat level"
)

// MetricNames is the canonical order the prompt asks the model to report in.
var MetricNames = []MetricName{
	MetricWeight,
	MetricSkeletalMuscleMass,
	MetricBodyFatMass,
	MetricBodyFatPercentage,
	MetricBMI,
	MetricWaistHipRatio,
	MetricVisceralFatLevel,
}

type Status string

const (
	StatusNormal           Status = "normal"
	StatusCaution          Status = "caution"
	StatusNeedsImprovement Status = "needs-improvement"
)

// Unreadable is the value the model reports for a metric it could not read.
const Unreadable = "unreadable"

type Goal string

const (
	GoalBalanced       Goal = "balanced"
	GoalFatPriority    Goal = "fat-priority"
	GoalMusclePriority Goal = "muscle-priority"
)

func (g Goal) Valid() bool {
	switch g {
	case GoalBalanced, GoalFatPriority, GoalMusclePriority:
		return true
	}
	return false
}

type Tone string

const (
	ToneGentle       Tone = "gentle"
	ToneProfessional Tone = "professional"
	ToneConcise      Tone = "concise"
)

func (t Tone) Valid() bool {
	switch t {
	case ToneGentle, ToneProfessional, ToneConcise:
		return true
	}
	return false
}

type Metric struct {
	Name   MetricName `json:"name"`
	Value  string     `json:"value"`
	Status Status     `json:"status"`
}

type InterpretationCard struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type RoutineItem struct {
	Product string `json:"product"`
	Why     string `json:"why"`
	How     string `json:"how"`
}

// RoutineSlot groups routine items by time of day ("morning", "lunch", "evening").
type RoutineSlot struct {
	Timing string        `json:"timing"`
	Items  []RoutineItem `json:"items"`
}

type CarePoint struct {
	Point             string `json:"point"`
	Action            string `json:"action"`
	ProductSuggestion string `json:"product_suggestion"`
}

type Solution struct {
	DailyRoutine     []RoutineSlot `json:"daily_routine"`
	FatManagement    []CarePoint   `json:"fat_management"`
	MuscleMetabolism []CarePoint   `json:"muscle_metabolism"`
	ComplianceNote   string        `json:"compliance_note,omitempty"`
}

type WeekPlan struct {
	Week        string   `json:"week"`
	Focus       string   `json:"focus"`
	Checkpoints []string `json:"checkpoints"`
}

// AnalysisResult - полный отчёт по одному скану.
type AnalysisResult struct {
	OneLineSummary string               `json:"one_line_summary"`
	Metrics        []Metric             `json:"metrics"`
	Interpretation []InterpretationCard `json:"interpretation"`
	Solution       Solution             `json:"solution"`
	CoachScript    []string             `json:"coach_script"`
	Guide4Weeks    []WeekPlan           `json:"guide_4weeks,omitempty"`
	SMSResult      string               `json:"sms_result"`
}

// AnalyzeInput is the request for a fresh scan analysis.
type AnalyzeInput struct {
	Image []byte
	MIME  string
	Goal  Goal
	Tone  Tone
	LLM   string // "gpt" | "gemini" | "" (default engine)
}

// ReanalyzeInput regenerates the narrative from user-confirmed metrics.
type ReanalyzeInput struct {
	Metrics         []Metric `json:"metrics"`
	Goal            Goal     `json:"goal"`
	Tone            Tone     `json:"tone"`
	OriginalSummary string   `json:"original_summary"`
	LLM             string   `json:"llm,omitempty"`
}

// CloneMetrics returns an independent copy of ms.
func CloneMetrics(ms []Metric) []Metric {
	if ms == nil {
		return nil
	}
	out := make([]Metric, len(ms))
	copy(out, ms)
	return out
}
