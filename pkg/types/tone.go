package types

type Tone string

const (
	ToneFormal        Tone = "formal"
	ToneFriendly      Tone = "friendly"
	ToneAssertive     Tone = "assertive"
	ToneApologetic    Tone = "apologetic"
	ToneUrgent        Tone = "urgent"
	ToneDiplomatic    Tone = "diplomatic"
	ToneCasual        Tone = "casual"
	ToneConfident     Tone = "confident"
	ToneEmpathetic    Tone = "empathetic"
	ToneDirect        Tone = "direct"
	ToneCollaborative Tone = "collaborative"
	ToneGrateful      Tone = "grateful"
)

// toneTiers maps each tone to the minimum plan required to use it.
var toneTiers = map[Tone]Plan{
	ToneFormal:        PlanFree,
	ToneFriendly:      PlanFree,
	ToneAssertive:     PlanFree,
	ToneApologetic:    PlanFree,
	ToneUrgent:        PlanPro,
	ToneDiplomatic:    PlanPro,
	ToneCasual:        PlanPro,
	ToneConfident:     PlanPro,
	ToneEmpathetic:    PlanPro,
	ToneDirect:        PlanPro,
	ToneCollaborative: PlanPro,
	ToneGrateful:      PlanPro,
}

func (t Tone) Valid() bool {
	_, ok := toneTiers[t]
	return ok
}

// RequiredPlan returns the minimum plan for the tone. Unknown tones require
// pro so that new tones default to the paid tier until classified.
func (t Tone) RequiredPlan() Plan {
	if p, ok := toneTiers[t]; ok {
		return p
	}
	return PlanPro
}
