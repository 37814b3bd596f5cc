package inference

import "hash/fnv"

// CorrelationID derives a portal correlation id from a caller-chosen
// request id. AnswerResp carries no numeric id of its own, unlike the VLC
// reply, so the portal correlates prompt calls by hashing RequestID instead.
func CorrelationID(requestID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(requestID))
	return h.Sum64()
}
