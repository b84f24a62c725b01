package upbeat

type AllocError int

const AllocNoError AllocError = 0
const AllocNoFreeFrames AllocError = -1
const AllocBadAddress AllocError = -2
const AllocAlreadyFree AllocError = -3
const AllocBadRequest AllocError = -4
const BusFault AllocError = -5

func (e AllocError) Error() string {
	return e.String()
}

func (e AllocError) String() string {
	switch e {
	case AllocNoError:
		return "AllocNoError"
	case AllocNoFreeFrames:
		return "AllocNoFreeFrames"
	case AllocBadAddress:
		return "AllocBadAddress"
	case AllocAlreadyFree:
		return "AllocAlreadyFree"
	case AllocBadRequest:
		return "AllocBadRequest"
	case BusFault:
		return "BusFault"
	}
	return "unknown allocation error"
}
