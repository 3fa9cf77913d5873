package engine

import "math/rand"

// funMessages is shown next to the holder while the WC is occupied.
var funMessages = []string{
	"Make yourself at home 🧻",
	"Strategic meeting in progress 🚀",
	"Deep thinking happening 🤔",
	"Serious meditation in there 🧘",
	"Patience is a virtue 😌",
	"Creativity zone activated 💡",
	"Brainstorming session underway 🌊",
	"Loading... 📥",
	"Philosophical break ☁️",
	"Busy changing the world 🌍",
}

// uniformPick returns an index in [0, n).
func uniformPick(n int) int {
	return rand.Intn(n)
}
