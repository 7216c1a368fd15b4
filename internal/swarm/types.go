package swarm

// NoStack labels services deployed outside any stack.
const NoStack = "(no stack)"

// ClusterInfo describes the swarm as seen from the local node.
type ClusterInfo struct {
	NodeID    string `json:"node_id" yaml:"node_id"`
	NodeAddr  string `json:"node_addr" yaml:"node_addr"`
	IsManager bool   `json:"is_manager" yaml:"is_manager"`
	Managers  int    `json:"managers" yaml:"managers"`
	Nodes     int    `json:"nodes" yaml:"nodes"`
}

// Node is one row of `docker node ls`.
type Node struct {
	ID            string `json:"ID" yaml:"id"`
	Hostname      string `json:"Hostname" yaml:"hostname"`
	Status        string `json:"Status" yaml:"status"`
	Availability  string `json:"Availability" yaml:"availability"`
	ManagerStatus string `json:"ManagerStatus" yaml:"manager_status"`
	EngineVersion string `json:"EngineVersion" yaml:"engine_version"`
	Self          bool   `json:"Self" yaml:"self"`
	IPAddress     string `json:"IPAddress,omitempty" yaml:"ip_address"`
}

// Service is one row of `docker service ls` plus its stack label.
type Service struct {
	ID       string `json:"ID" yaml:"id"`
	Name     string `json:"Name" yaml:"name"`
	Mode     string `json:"Mode" yaml:"mode"`
	Replicas string `json:"Replicas" yaml:"replicas"`
	Image    string `json:"Image" yaml:"image"`
	Ports    string `json:"Ports" yaml:"ports"`
	Stack    string `json:"Stack,omitempty" yaml:"stack"`
}

// Task is one row of `docker service ps`.
type Task struct {
	ID           string `json:"ID" yaml:"id"`
	Name         string `json:"Name" yaml:"name"`
	Image        string `json:"Image" yaml:"image"`
	Node         string `json:"Node" yaml:"node"`
	DesiredState string `json:"DesiredState" yaml:"desired_state"`
	CurrentState string `json:"CurrentState" yaml:"current_state"`
	Error        string `json:"Error" yaml:"error"`
	Ports        string `json:"Ports" yaml:"ports"`
}

// Stack groups services by their stack namespace label. Services holds
// indices into the slice the stack was built from.
type Stack struct {
	Name     string `json:"name" yaml:"name"`
	Services []int  `json:"services" yaml:"services"`
}
