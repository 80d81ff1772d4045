// Package handoff submits the prepared dataset and classifier config to an
// external trainer as a Kubernetes Job. It sets no training hyper-parameters.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const submitTimeout = 10 * time.Second

// ErrNoImage is returned when no trainer image is configured.
var ErrNoImage = errors.New("trainer image is not configured")

// Options describes where and how trainer Jobs run.
type Options struct {
	Namespace    string
	Image        string
	NodeSelector string // key=value
	GPUResource  string // e.g., nvidia.com/gpu
	GPUCount     string // e.g., "1"
	TTLSeconds   int32
	DryRun       bool
}

// Request is what the trainer needs to pick up a run.
type Request struct {
	RunID           string
	DatasetPath     string
	ModelConfigPath string
	BaseModel       string
	NumLabels       int
}

// Submitter creates trainer Jobs.
type Submitter struct {
	client kubernetes.Interface
	opts   Options
	logger *zap.Logger
}

// NewClientset builds a clientset from the in-cluster config or a kubeconfig file.
func NewClientset(inCluster bool, kubeconfig string) (kubernetes.Interface, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if inCluster {
		restCfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("in-cluster config: %w", err)
		}
	} else {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("kubeconfig %s: %w", kubeconfig, err)
		}
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("clientset: %w", err)
	}
	return clientset, nil
}

// NewSubmitter returns a Submitter. client may be nil in dry-run mode.
func NewSubmitter(client kubernetes.Interface, opts Options, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GPUCount == "" {
		opts.GPUCount = "0"
	}
	return &Submitter{client: client, opts: opts, logger: logger}
}

// BuildJob renders the Job for req without submitting it.
func (s *Submitter) BuildJob(req Request) (*batchv1.Job, error) {
	if s.opts.Image == "" {
		return nil, ErrNoImage
	}

	// Parse node selector key=value
	nsKey, nsVal := "", ""
	if kv := strings.SplitN(s.opts.NodeSelector, "=", 2); len(kv) == 2 {
		nsKey, nsVal = strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
	}

	cpuReq := resource.MustParse("4")
	memReq := resource.MustParse("8Gi")
	limits := corev1.ResourceList{
		corev1.ResourceCPU:    cpuReq,
		corev1.ResourceMemory: memReq,
	}
	requests := corev1.ResourceList{
		corev1.ResourceCPU:    cpuReq,
		corev1.ResourceMemory: memReq,
	}
	if s.opts.GPUResource != "" && s.opts.GPUCount != "0" {
		gpuQty, err := resource.ParseQuantity(s.opts.GPUCount)
		if err != nil {
			return nil, fmt.Errorf("gpu count %q: %w", s.opts.GPUCount, err)
		}
		rn := corev1.ResourceName(s.opts.GPUResource)
		limits[rn] = gpuQty
		requests[rn] = gpuQty
	}

	backoff := int32(0)
	ttl := s.opts.TTLSeconds
	env := []corev1.EnvVar{
		{Name: "RUN_ID", Value: req.RunID},
		{Name: "DATASET_PATH", Value: req.DatasetPath},
		{Name: "MODEL_CONFIG_PATH", Value: req.ModelConfigPath},
		{Name: "BASE_MODEL", Value: req.BaseModel},
		{Name: "NUM_LABELS", Value: strconv.Itoa(req.NumLabels)},
	}

	podSpec := corev1.PodSpec{
		RestartPolicy: corev1.RestartPolicyNever,
		Containers: []corev1.Container{{
			Name:  "trainer",
			Image: s.opts.Image,
			Env:   env,
			Resources: corev1.ResourceRequirements{
				Limits:   limits,
				Requests: requests,
			},
		}},
	}
	if nsKey != "" && nsVal != "" {
		podSpec.NodeSelector = map[string]string{nsKey: nsVal}
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName(req.RunID),
			Namespace: s.opts.Namespace,
			Labels: map[string]string{
				"app":     "insurance-qa-trainer",
				"trigger": "model-prep",
				"run-id":  req.RunID,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoff,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				Spec: podSpec,
			},
		},
	}, nil
}

// Submit creates the Job, or only logs it in dry-run mode. It returns the Job name.
func (s *Submitter) Submit(ctx context.Context, req Request) (string, error) {
	job, err := s.BuildJob(req)
	if err != nil {
		return "", err
	}

	if s.opts.DryRun {
		s.logger.Info("dry-run: would create trainer job",
			zap.String("namespace", job.Namespace),
			zap.String("job", job.Name),
			zap.String("image", s.opts.Image),
			zap.String("dataset_path", req.DatasetPath),
			zap.Int("num_labels", req.NumLabels))
		return job.Name, nil
	}
	if s.client == nil {
		return "", errors.New("no kubernetes client configured")
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	if _, err := s.client.BatchV1().Jobs(s.opts.Namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("failed to create job %s/%s: %w", s.opts.Namespace, job.Name, err)
	}
	s.logger.Info("created trainer job",
		zap.String("namespace", s.opts.Namespace),
		zap.String("job", job.Name),
		zap.String("image", s.opts.Image))
	return job.Name, nil
}

// jobName derives a DNS-1123 name from the run id.
func jobName(runID string) string {
	id := strings.ToLower(strings.ReplaceAll(runID, "-", ""))
	if len(id) > 12 {
		id = id[:12]
	}
	if id == "" {
		return fmt.Sprintf("train-%d", time.Now().Unix())
	}
	return "train-" + id
}
