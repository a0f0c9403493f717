package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	clientTesting "k8s.io/client-go/testing"

	"github.com/tidelineproject/tideline/internal/scaler/configuration"
	"github.com/tidelineproject/tideline/internal/scaler/model"
)

func TestKubernetesSpawn_CreatesWorkerPod(t *testing.T) {
	client := fake.NewSimpleClientset()
	b := newTestKubernetesBackend(client)
	job := backendJob("01abc", model.Resources{CpuMillis: 1500, MemoryBytes: 2 << 30})

	handle, err := b.Spawn(job, model.ImageSpec{Image: "registry/harvester:1.2", PullPolicy: "IfNotPresent"})
	require.NoError(t, err)
	assert.Equal(t, "tideline-worker-01abc", handle.Name)
	assert.Equal(t, "kubernetes", handle.Backend)

	pod, err := client.CoreV1().Pods("workers").Get(context.Background(), "tideline-worker-01abc", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "01abc", pod.Labels[jobIdLabel])
	assert.Equal(t, "alice", pod.Labels[userLabel])
	assert.Equal(t, v1.RestartPolicyNever, pod.Spec.RestartPolicy)

	require.Len(t, pod.Spec.Containers, 1)
	container := pod.Spec.Containers[0]
	assert.Equal(t, "registry/harvester:1.2", container.Image)
	assert.Equal(t, v1.PullIfNotPresent, container.ImagePullPolicy)

	cpu := container.Resources.Requests[v1.ResourceCPU]
	memory := container.Resources.Requests[v1.ResourceMemory]
	assert.Equal(t, int64(1500), cpu.MilliValue())
	assert.Equal(t, int64(2<<30), memory.Value())
	_, hasStorage := container.Resources.Requests[v1.ResourceEphemeralStorage]
	assert.False(t, hasStorage, "zero storage request is omitted")
}

func TestKubernetesSpawn_SecondSpawnIsAlreadySpawned(t *testing.T) {
	client := fake.NewSimpleClientset()
	b := newTestKubernetesBackend(client)
	job := backendJob("01abc", model.Resources{CpuMillis: 1000})

	_, err := b.Spawn(job, model.ImageSpec{Image: "registry/harvester:1.2"})
	require.NoError(t, err)

	_, err = b.Spawn(job, model.ImageSpec{Image: "registry/harvester:1.2"})
	var already *ErrAlreadySpawned
	require.ErrorAs(t, err, &already)
	assert.Equal(t, "01abc", already.JobId)
}

func TestKubernetesSpawn_ForbiddenIsFatal(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.Fake.PrependReactor("create", "pods", func(action clientTesting.Action) (bool, runtime.Object, error) {
		return true, nil, k8serrors.NewForbidden(
			schema.GroupResource{Resource: "pods"}, "tideline-worker-01abc", errors.New("quota exceeded"))
	})
	b := newTestKubernetesBackend(client)

	_, err := b.Spawn(backendJob("01abc", model.Resources{CpuMillis: 1000}), model.ImageSpec{Image: "registry/harvester:1.2"})
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
}

func TestKubernetesSpawn_ServerErrorIsTransient(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.Fake.PrependReactor("create", "pods", func(action clientTesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("server error")
	})
	b := newTestKubernetesBackend(client)

	_, err := b.Spawn(backendJob("01abc", model.Resources{CpuMillis: 1000}), model.ImageSpec{Image: "registry/harvester:1.2"})
	var transient *TransientError
	require.ErrorAs(t, err, &transient)
}

func newTestKubernetesBackend(client *fake.Clientset) *KubernetesBackend {
	return NewKubernetesBackendWithClient(client, configuration.KubernetesBackendConfig{
		Namespace:    "workers",
		SpawnTimeout: 5 * time.Second,
	})
}

func backendJob(id string, resources model.Resources) *model.Job {
	return &model.Job{
		Id:        id,
		User:      "alice",
		Group:     "corp",
		Pipeline:  "triage",
		Stage:     "unpack",
		Status:    model.JobCreated,
		Resources: resources,
	}
}
