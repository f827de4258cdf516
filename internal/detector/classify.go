package detector

type verdict int8

const (
	peerAlive verdict = iota
	peerDead
)

// classify turns one probe outcome into a verdict. Any failure, whatever its
// kind, is enough to consider the peer dead.
func classify(probeErr error) verdict {
	if probeErr != nil {
		return peerDead
	}
	return peerAlive
}
