package engine

import "github.com/Kong/datakit/config"

// Fixed indices of the four envelope nodes, matching the order they must
// be passed to config.Compile in.
const (
	nodeRequest = iota
	nodeServiceRequest
	nodeServiceResponse
	nodeResponse
)

// Port indices shared by every envelope node's body/headers ports; query is
// only ever an extra output of request and extra input of service_request,
// so it isn't given equal standing here.
const (
	portBody = iota
	portHeaders
	portQuery
)

// Implicits is the fixed envelope node list every compiled graph carries,
// in the index order the engine assumes. request/service_request declare a
// third "query" port per spec section 6; no host API currently supplies a
// query string independent of the request path, so the driver declares the
// port (so a config can reference request.query without a compile error)
// without ever filling it.
func Implicits() []config.ImplicitNode {
	ports := []string{"body", "headers"}
	reqPorts := []string{"body", "headers", "query"}
	return []config.ImplicitNode{
		{Name: "request", Outputs: append([]string(nil), reqPorts...)},
		{Name: "service_request", Inputs: append([]string(nil), reqPorts...), Outputs: append([]string(nil), ports...)},
		{Name: "service_response", Outputs: append([]string(nil), ports...)},
		{Name: "response", Inputs: append([]string(nil), ports...), Outputs: append([]string(nil), ports...)},
	}
}
