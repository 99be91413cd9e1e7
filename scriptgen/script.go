package scriptgen

// ScriptType selects which prompt template drives generation.
type ScriptType string

const (
	ScriptTypeFull   ScriptType = "full"
	ScriptTypeSimple ScriptType = "simple"
)

func (s ScriptType) Valid() bool {
	return s == ScriptTypeFull || s == ScriptTypeSimple
}

// VideoInfo carries the source video facts the script is derived from.
type VideoInfo struct {
	OriginalURL string  `json:"original_url"`
	Duration    float64 `json:"duration"`
	Author      string  `json:"author"`
	Title       string  `json:"title"`
}

// SuccessFormula explains why the source video worked.
type SuccessFormula struct {
	HookType          string   `json:"hook_type"`
	HookDescription   string   `json:"hook_description"`
	ContentStructure  string   `json:"content_structure"`
	EmotionalArc      string   `json:"emotional_arc"`
	KeySuccessFactors []string `json:"key_success_factors"`
}

// StoryboardShot is one shot of the recreated storyboard.
type StoryboardShot struct {
	ShotNumber        int     `json:"shot_number"`
	TimeStart         string  `json:"time_start"`
	TimeEnd           string  `json:"time_end"`
	Duration          float64 `json:"duration"`
	ShotType          string  `json:"shot_type"`
	VisualDescription string  `json:"visual_description"`
	ScriptText        string  `json:"script_text"`
	ActionDescription string  `json:"action_description"`
	CameraMovement    string  `json:"camera_movement"`
	Transition        string  `json:"transition"`
	Emotion           string  `json:"emotion"`
	Notes             string  `json:"notes"`
}

// BeatPoint marks a moment the edit should land on the music.
type BeatPoint struct {
	Time        string `json:"time"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type MusicBeats struct {
	MusicStyle string      `json:"music_style"`
	BPMRange   string      `json:"bpm_range"`
	BeatPoints []BeatPoint `json:"beat_points"`
}

type OpeningHook struct {
	Technique  string `json:"technique"`
	Example    string `json:"example"`
	HowToAdapt string `json:"how_to_adapt"`
}

type EngagementTrigger struct {
	TriggerType     string `json:"trigger_type"`
	OriginalExample string `json:"original_example"`
	AdaptationTip   string `json:"adaptation_tip"`
}

type CallToAction struct {
	CTAType      string `json:"cta_type"`
	OriginalText string `json:"original_text"`
	Template     string `json:"template"`
}

// ReusableElements collects techniques from the source video that transfer
// to new productions.
type ReusableElements struct {
	OpeningHook        OpeningHook         `json:"opening_hook"`
	EngagementTriggers []EngagementTrigger `json:"engagement_triggers"`
	CallToAction       CallToAction        `json:"call_to_action"`
}

type PreparationStep struct {
	Step        int    `json:"step"`
	Description string `json:"description"`
	Details     string `json:"details"`
}

type ProductionGuide struct {
	EquipmentNeeded         []string          `json:"equipment_needed"`
	PreparationSteps        []PreparationStep `json:"preparation_steps"`
	ShootingTips            []string          `json:"shooting_tips"`
	EditingTips             []string          `json:"editing_tips"`
	EstimatedProductionTime string            `json:"estimated_production_time"`
}

// ProductionScript is the complete shoot-ready script produced from a
// finished video analysis.
type ProductionScript struct {
	ScriptVersion    string           `json:"script_version"`
	VideoInfo        VideoInfo        `json:"video_info"`
	SuccessFormula   SuccessFormula   `json:"success_formula"`
	Storyboard       []StoryboardShot `json:"storyboard"`
	MusicBeats       MusicBeats       `json:"music_beats"`
	ReusableElements ReusableElements `json:"reusable_elements"`
	ProductionGuide  ProductionGuide  `json:"production_guide"`
}
