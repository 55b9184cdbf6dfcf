package events

import "strconv"

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatUnix(ts int64) string {
	return strconv.FormatInt(ts, 10)
}
