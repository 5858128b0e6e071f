// Package fsmhttp exposes a running state machine over HTTP.
//
//	GET  /state            current state, started flag, notification switch
//	GET  /definition       states and transitions
//	GET  /stats            publisher counters
//	POST /start            start the machine
//	POST /stop             stop the machine
//	PUT  /notifications    {"enabled": bool}
//	POST /events/{event}   send an event; an optional JSON body is passed as data
//	GET  /occurrences      server-sent event stream of occurrences
//
// An applied event answers 200. Rejections answer 409, except a failed action
// (422) and an empty event name (400). The occurrence stream is only mounted
// when a broadcaster is supplied with WithStream; attach the same broadcaster
// to the machine through observer.NewBroadcast.
package fsmhttp
