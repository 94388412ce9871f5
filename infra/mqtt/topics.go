package mqtt

import "strings"

// DefaultPrefix is the root of every topic the engine uses.
const DefaultPrefix = "gridready"

// Signal kinds, the last topic level of a signal topic.
const (
	KindWeather     = "weather"
	KindDeviation   = "deviation"
	KindCurtailment = "curtailment"
)

// SignalTopic returns the topic a plant's signal of kind is published on.
func SignalTopic(prefix, plantID, kind string) string {
	return prefix + "/" + plantID + "/" + kind
}

// SignalFilter returns the subscription filter for kind across all plants.
func SignalFilter(prefix, kind string) string {
	return prefix + "/+/" + kind
}

// NotificationTopic returns the topic notifications of a plant go to.
func NotificationTopic(prefix, plantID string) string {
	return prefix + "/" + plantID + "/notifications"
}

// ParseSignalTopic splits "<prefix>/<plant>/<kind>".
func ParseSignalTopic(prefix, topic string) (plantID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	switch parts[1] {
	case KindWeather, KindDeviation, KindCurtailment:
		return parts[0], parts[1], true
	}
	return "", "", false
}
