package network

import (
	"sort"
	"sync"
	"time"
)

const (
	// RTTWindowSize is the number of recent round trips kept by an RTTTracker
	RTTWindowSize = 10
)

// RTTTracker keeps the recent websocket round trip times of a connection.
type RTTTracker struct {
	lock       sync.Mutex
	recentRTTs []int64
}

func NewRTTTracker() *RTTTracker {
	return &RTTTracker{}
}

// Add records a round trip, dropping the oldest one once the window is full.
func (t *RTTTracker) Add(rtt time.Duration) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.recentRTTs = append(t.recentRTTs, rtt.Milliseconds())
	if len(t.recentRTTs) > RTTWindowSize {
		t.recentRTTs = t.recentRTTs[len(t.recentRTTs)-RTTWindowSize:]
	}
}

// Average returns the mean of the recent round trips, ignoring outliers.
func (t *RTTTracker) Average() time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()
	rtts := removeOutlierRTTs(t.recentRTTs)
	if len(rtts) == 0 {
		return 0
	}
	var sum int64
	for _, rtt := range rtts {
		sum += rtt
	}
	return time.Duration(sum/int64(len(rtts))) * time.Millisecond
}

// removeOutlierRTTs removes outler RTTs from the recent RTTs.
// An outlier RTT is defined as an RTT that is greater than 2 times the median RTT
// and is also greater than 20ms.
func removeOutlierRTTs(recentRTTs []int64) []int64 {
	result := make([]int64, 0)
	medianRTT := medianRTT(recentRTTs)
	for i := 0; i < len(recentRTTs); i++ {
		if recentRTTs[i] > 2*medianRTT && recentRTTs[i] > 20 {
			continue
		}
		result = append(result, recentRTTs[i])
	}
	return result
}

// medianRTT returns the median RTT from a slice of RTTs.
func medianRTT(recentRTTs []int64) int64 {
	if len(recentRTTs) == 0 {
		return 0
	}
	sortedRTTs := make([]int64, len(recentRTTs))
	copy(sortedRTTs, recentRTTs)
	sort.Slice(sortedRTTs, func(i, j int) bool {
		return sortedRTTs[i] < sortedRTTs[j]
	})
	if len(sortedRTTs)%2 == 0 {
		return (sortedRTTs[len(sortedRTTs)/2-1] + sortedRTTs[len(sortedRTTs)/2]) / 2
	}
	return sortedRTTs[len(sortedRTTs)/2]
}
