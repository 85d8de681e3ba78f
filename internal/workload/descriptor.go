package workload

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Descriptor is the declarative definition of the single workload unit a
// run manages: identity plus a one-container spec.
type Descriptor struct {
	Name      string
	Namespace string
	Image     string
	Command   []string
}

// BuildPod renders the descriptor into a pod manifest. Pure construction,
// no API calls; the command slice is copied so the descriptor stays owned
// by the caller.
func (d Descriptor) BuildPod() *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      d.Name,
			Namespace: d.Namespace,
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Name:    d.Name,
					Image:   d.Image,
					Command: append([]string(nil), d.Command...),
				},
			},
		},
	}
}
