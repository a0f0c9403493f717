package backend

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/tidelineproject/tideline/internal/scaler/configuration"
	"github.com/tidelineproject/tideline/internal/scaler/model"
)

const workerNamePrefix = "tideline-worker-"

const (
	jobIdLabel    = "tideline_job_id"
	userLabel     = "tideline_user"
	groupLabel    = "tideline_group"
	pipelineLabel = "tideline_pipeline"
	stageLabel    = "tideline_stage"
)

// KubernetesBackend spawns one worker pod per admitted job. Pod names derive
// from job ids, so a retried spawn of the same job collides with the first
// instead of doubling up.
type KubernetesBackend struct {
	client       kubernetes.Interface
	namespace    string
	spawnTimeout time.Duration
	pullPolicy   v1.PullPolicy
}

func NewKubernetesBackend(config configuration.KubernetesBackendConfig) (*KubernetesBackend, error) {
	restConfig, err := loadConfig()
	if err != nil {
		return nil, err
	}
	restConfig.Burst = 10000
	restConfig.QPS = 10000

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	return NewKubernetesBackendWithClient(client, config), nil
}

func NewKubernetesBackendWithClient(client kubernetes.Interface, config configuration.KubernetesBackendConfig) *KubernetesBackend {
	namespace := config.Namespace
	if namespace == "" {
		namespace = "default"
	}
	spawnTimeout := config.SpawnTimeout
	if spawnTimeout <= 0 {
		spawnTimeout = 30 * time.Second
	}
	return &KubernetesBackend{
		client:       client,
		namespace:    namespace,
		spawnTimeout: spawnTimeout,
		pullPolicy:   v1.PullPolicy(config.ImagePullPolicy),
	}
}

func (b *KubernetesBackend) Name() string {
	return "kubernetes"
}

func (b *KubernetesBackend) Spawn(job *model.Job, spec model.ImageSpec) (*model.WorkerHandle, error) {
	pod := b.createWorkerPod(job, spec)

	ctx, cancel := context.WithTimeout(context.Background(), b.spawnTimeout)
	defer cancel()

	created, err := b.client.CoreV1().Pods(b.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		if k8serrors.IsAlreadyExists(err) {
			return nil, &ErrAlreadySpawned{JobId: job.Id}
		}
		if status, ok := err.(k8serrors.APIStatus); ok && isNotRecoverable(status.Status().Reason) {
			return nil, &FatalError{Reason: string(status.Status().Reason), Cause: err}
		}
		return nil, &TransientError{Reason: "pod creation failed", Cause: err}
	}

	return &model.WorkerHandle{
		Name:    created.Name,
		Backend: b.Name(),
		Node:    created.Spec.NodeName,
	}, nil
}

func isNotRecoverable(reason metav1.StatusReason) bool {
	return reason == metav1.StatusReasonInvalid ||
		reason == metav1.StatusReasonForbidden
}

func (b *KubernetesBackend) createWorkerPod(job *model.Job, spec model.ImageSpec) *v1.Pod {
	pullPolicy := b.pullPolicy
	if spec.PullPolicy != "" {
		pullPolicy = v1.PullPolicy(spec.PullPolicy)
	}

	return &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:   workerNamePrefix + job.Id,
			Labels: createWorkerLabels(job),
		},
		Spec: v1.PodSpec{
			RestartPolicy: v1.RestartPolicyNever,
			Containers: []v1.Container{
				{
					Name:            "worker",
					Image:           spec.Image,
					ImagePullPolicy: pullPolicy,
					Env: []v1.EnvVar{
						{Name: "TIDELINE_JOB_ID", Value: job.Id},
						{Name: "TIDELINE_STAGE", Value: job.Stage},
					},
					Resources: v1.ResourceRequirements{
						Requests: workerResourceList(job.Resources),
						Limits:   workerResourceList(job.Resources),
					},
				},
			},
		},
	}
}

func createWorkerLabels(job *model.Job) map[string]string {
	return map[string]string{
		jobIdLabel:    job.Id,
		userLabel:     job.User,
		groupLabel:    job.Group,
		pipelineLabel: job.Pipeline,
		stageLabel:    job.Stage,
	}
}

func workerResourceList(resources model.Resources) v1.ResourceList {
	list := v1.ResourceList{
		v1.ResourceCPU:    *resource.NewMilliQuantity(resources.CpuMillis, resource.DecimalSI),
		v1.ResourceMemory: *resource.NewQuantity(resources.MemoryBytes, resource.BinarySI),
	}
	if resources.StorageBytes > 0 {
		list[v1.ResourceEphemeralStorage] = *resource.NewQuantity(resources.StorageBytes, resource.BinarySI)
	}
	return list
}

func loadConfig() (*rest.Config, error) {
	config, err := rest.InClusterConfig()
	if err == rest.ErrNotInCluster {
		log.Info("Running with default client configuration")
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		overrides := &clientcmd.ConfigOverrides{}
		return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	}
	log.Info("Running with in cluster client configuration")
	return config, err
}
