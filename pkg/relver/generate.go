package relver

import (
	"math/rand"
	"reflect"
	"testing/quick"
)

func randBool(rand *rand.Rand) bool {
	return rand.Intn(2) == 1
}

func randSeg(rand *rand.Rand) int {
	return rand.Intn(3000)
}

func (v Version) generate(rand *rand.Rand, _ int) Version {
	v.Release = make([]int, 2+rand.Intn(2))
	for i := range v.Release {
		v.Release[i] = randSeg(rand)
	}
	if randBool(rand) {
		v.Pre = &PreRelease{
			L: []string{"a", "b"}[rand.Intn(2)],
			N: randSeg(rand),
		}
	}
	return v
}

// Generate implements testing/quick.Generator.
func (v Version) Generate(rand *rand.Rand, size int) reflect.Value {
	return reflect.ValueOf(v.generate(rand, size))
}

var _ quick.Generator = Version{}
