package generation

import (
	types "github.com/bossbuddy/billing/pkg/types"
)

type tonePrompt struct {
	system      string
	style       string
	temperature float32
}

// tonePrompts drives the system prompt and sampling temperature per tone.
var tonePrompts = map[types.Tone]tonePrompt{
	types.ToneFormal: {
		system:      "You are a professional business communication expert. Rewrite messages with utmost professionalism, using formal language, proper salutations, and a respectful tone.",
		style:       "Use 'Dear', proper titles, formal vocabulary, and professional closings.",
		temperature: 0.3,
	},
	types.ToneFriendly: {
		system:      "You are a warm, approachable communication coach. Rewrite messages to sound friendly and personable while maintaining professionalism.",
		style:       "Use conversational tone, 'Hi' greetings, positive language, and warm closings.",
		temperature: 0.5,
	},
	types.ToneAssertive: {
		system:      "You are a confident business leader. Rewrite messages to be clear, direct, and assertive without being aggressive.",
		style:       "Use strong action words, clear statements, and confident language.",
		temperature: 0.4,
	},
	types.ToneApologetic: {
		system:      "You are an empathetic communicator. Rewrite messages to express sincere apology and take responsibility appropriately.",
		style:       "Use apologetic phrases, acknowledge impact, and show genuine concern.",
		temperature: 0.4,
	},
	types.ToneUrgent: {
		system:      "You are a crisis communication expert. Rewrite messages to convey urgency and prompt action.",
		style:       "Use 'URGENT' markers, action-oriented language, clear deadlines, and brief sentences.",
		temperature: 0.3,
	},
	types.ToneDiplomatic: {
		system:      "You are a skilled diplomat. Rewrite messages to be tactful, balanced, and considerate of all perspectives.",
		style:       "Use neutral language, acknowledge different viewpoints, and suggest collaborative solutions.",
		temperature: 0.4,
	},
	types.ToneCasual: {
		system:      "You are a relaxed colleague. Rewrite messages in a casual, easy-going manner while staying professional.",
		style:       "Use informal greetings, contractions, and conversational language.",
		temperature: 0.6,
	},
	types.ToneConfident: {
		system:      "You are a successful executive. Rewrite messages to exude confidence and leadership.",
		style:       "Use definitive statements, showcase expertise, and project authority.",
		temperature: 0.4,
	},
	types.ToneEmpathetic: {
		system:      "You are an emotional intelligence expert. Rewrite messages to show deep understanding and empathy.",
		style:       "Acknowledge feelings, show understanding, and offer support.",
		temperature: 0.5,
	},
	types.ToneDirect: {
		system:      "You are a no-nonsense communicator. Rewrite messages to be extremely clear and to the point.",
		style:       "Use bullet points, short sentences, and eliminate fluff.",
		temperature: 0.2,
	},
	types.ToneCollaborative: {
		system:      "You are a team builder. Rewrite messages to foster collaboration and teamwork.",
		style:       "Use 'we' language, invite input, and emphasize shared goals.",
		temperature: 0.5,
	},
	types.ToneGrateful: {
		system:      "You are an appreciation expert. Rewrite messages to express genuine gratitude and recognition.",
		style:       "Use thankful language, acknowledge specific contributions, and show appreciation.",
		temperature: 0.5,
	},
}

// promptFor falls back to a generic workplace rewrite prompt for tones
// without a dedicated configuration.
func promptFor(tone types.Tone) tonePrompt {
	if p, ok := tonePrompts[tone]; ok {
		return p
	}
	return tonePrompt{
		system:      "You are a professional communication expert. Rewrite the following message for workplace communication. Keep it concise, professional, and appropriate. Maintain the core message while adjusting the tone.",
		temperature: 0.7,
	}
}
