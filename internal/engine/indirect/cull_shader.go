package indirect

// Cull shader bindings. Storage bindings share one namespace; the
// parameter block is a uniform at cullParamsBinding.
const (
	bindCommands = iota
	bindCompact
	bindModels
	bindBounds
	bindVisible
	cullParamsBinding
)

// cullWorkgroupSize is local_size_x of the cull shader.
const cullWorkgroupSize = 64

// cullParamsSize is the std140 size of CullParams.
const cullParamsSize = 80

const cullGLSL = `#version 460 core
layout(local_size_x = 64) in;

struct DrawCommand {
    uint indexCount;
    uint instanceCount;
    uint firstIndex;
    int  vertexOffset;
    uint firstInstance;
};

struct Bounds {
    vec4 bmin;
    vec4 bmax;
};

layout(std430, binding = 0) readonly buffer Commands { DrawCommand commands[]; };
layout(std430, binding = 1) writeonly buffer Compact { DrawCommand compact[]; };
layout(std430, binding = 2) readonly buffer Models { mat4 models[]; };
layout(std430, binding = 3) readonly buffer BoundsBuf { Bounds bounds[]; };
layout(std430, binding = 4) buffer Visible { uint visibleCount; };

layout(std140, binding = 5) uniform CullParams {
    mat4 viewProj;
    uint meshCount;
    uint maxDraws;
};

bool outside(vec4 c[8], int axis, float sgn) {
    for (int i = 0; i < 8; i++) {
        if (sgn * c[i][axis] <= c[i].w) {
            return false;
        }
    }
    return true;
}

void main() {
    uint id = gl_GlobalInvocationID.x;
    if (id >= meshCount) {
        return;
    }

    Bounds b = bounds[id];
    if (b.bmin.x > b.bmax.x) {
        return;
    }

    mat4 mvp = viewProj * models[id];
    vec4 c[8];
    for (int i = 0; i < 8; i++) {
        vec3 p = vec3((i & 1) != 0 ? b.bmax.x : b.bmin.x,
                      (i & 2) != 0 ? b.bmax.y : b.bmin.y,
                      (i & 4) != 0 ? b.bmax.z : b.bmin.z);
        c[i] = mvp * vec4(p, 1.0);
    }

    for (int axis = 0; axis < 3; axis++) {
        if (outside(c, axis, 1.0) || outside(c, axis, -1.0)) {
            return;
        }
    }

    uint slot = atomicAdd(visibleCount, 1u);
    if (maxDraws != 0u && slot >= maxDraws) {
        return;
    }
    compact[slot] = commands[id];
}
`

const cullWGSL = `struct DrawCommand {
    index_count: u32,
    instance_count: u32,
    first_index: u32,
    vertex_offset: i32,
    first_instance: u32,
}

struct Bounds {
    bmin: vec4<f32>,
    bmax: vec4<f32>,
}

struct CullParams {
    view_proj: mat4x4<f32>,
    mesh_count: u32,
    max_draws: u32,
    pad0: u32,
    pad1: u32,
}

@group(0) @binding(0) var<storage, read> commands: array<DrawCommand>;
@group(0) @binding(1) var<storage, read_write> compact: array<DrawCommand>;
@group(0) @binding(2) var<storage, read> models: array<mat4x4<f32>>;
@group(0) @binding(3) var<storage, read> bounds: array<Bounds>;
@group(0) @binding(4) var<storage, read_write> visible_count: atomic<u32>;
@group(0) @binding(5) var<uniform> params: CullParams;

fn corner(b: Bounds, i: u32) -> vec4<f32> {
    return vec4<f32>(
        select(b.bmin.x, b.bmax.x, (i & 1u) != 0u),
        select(b.bmin.y, b.bmax.y, (i & 2u) != 0u),
        select(b.bmin.z, b.bmax.z, (i & 4u) != 0u),
        1.0,
    );
}

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let id = gid.x;
    if (id >= params.mesh_count) {
        return;
    }

    let b = bounds[id];
    if (b.bmin.x > b.bmax.x) {
        return;
    }

    let mvp = params.view_proj * models[id];
    var inside_min = vec3<bool>(false, false, false);
    var inside_max = vec3<bool>(false, false, false);
    for (var i = 0u; i < 8u; i = i + 1u) {
        let c = mvp * corner(b, i);
        inside_min = inside_min | (c.xyz >= vec3<f32>(-c.w));
        inside_max = inside_max | (c.xyz <= vec3<f32>(c.w));
    }
    if (!all(inside_min) || !all(inside_max)) {
        return;
    }

    let slot = atomicAdd(&visible_count, 1u);
    if (params.max_draws != 0u && slot >= params.max_draws) {
        return;
    }
    compact[slot] = commands[id];
}
`
