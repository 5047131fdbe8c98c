package generator

import (
	"context"
	"math/rand/v2"
	"sync"
)

var builtinSituations = []string{
	"When you finally find the TV remote after buying a new one",
	"When the group project is due tomorrow and you are the only one who opened the doc",
	"When you wave back at someone who was waving at the person behind you",
	"When the microwave hits zero and you stop it at one second like a bomb defuser",
	"When your phone is at one percent and the charger is across the room",
	"When you say you are five minutes away but have not left the house yet",
	"When the professor says the exam is easy and half the class starts sweating",
	"When you open the fridge for the fifth time hoping new food appeared",
	"When the wifi drops right as you hit submit",
	"When your cat knocks something off the table while staring directly at you",
	"When you hear your own voice in a video for the first time",
	"When autocorrect changes the one word that mattered",
}

// Deck hands out built-in situations in a shuffled rotation. Every situation
// is used once before any repeats.
type Deck struct {
	mu    sync.Mutex
	cards []string
	order []int
	next  int
	rng   *rand.Rand
}

func NewDeck(cards []string) *Deck {
	if len(cards) == 0 {
		cards = builtinSituations
	}
	return &Deck{
		cards: append([]string(nil), cards...),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (d *Deck) Generate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.next >= len(d.order) {
		d.order = d.rng.Perm(len(d.cards))
		d.next = 0
	}
	card := d.cards[d.order[d.next]]
	d.next++
	return card, nil
}
