package domain

// ClusterContext holds the kubeconfig selection injected into the system prompt.
type ClusterContext struct {
	CLI        string
	Kubeconfig string
	Context    string
	Cluster    string
	Namespace  string
	Server     string
	Contexts   []string
	Tools      []string
}
