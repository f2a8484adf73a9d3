package room

import "math/rand"

// maxCodeAttempts bounds the rejection sampling when a generated code
// collides with a live room.
const maxCodeAttempts = 10

const codeLength = 6

// newRoomCode returns a 6-digit decimal code with a nonzero first digit.
func newRoomCode(rng *rand.Rand) string {
	digits := make([]byte, codeLength)
	digits[0] = byte('1' + rng.Intn(9))
	for i := 1; i < codeLength; i++ {
		digits[i] = byte('0' + rng.Intn(10))
	}
	return string(digits)
}
